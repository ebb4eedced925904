package content

// Package content holds the device catalog and the static, non-AI guidance
// served when every provider fails.
import (
	"encoding/json"
	"sort"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Step is one static instruction step
type Step struct {
	Title        string   `json:"title"`
	Instructions string   `json:"instructions"`
	Checkpoints  []string `json:"checkpoints"`
}

// Device describes a supported device and its canned steps
type Device struct {
	Type        types.DeviceType `json:"type"`
	DisplayName string           `json:"display_name"`
	Steps       []Step           `json:"steps"`
}

// TotalSteps returns the number of steps of the device
func (d *Device) TotalSteps() int {
	return len(d.Steps)
}

// Step returns the 1-based step n
func (d *Device) Step(n int) (Step, bool) {
	if n < 1 || n > len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[n-1], true
}

var devices = map[types.DeviceType]*Device{
	types.DeviceThermometer: {
		Type:        types.DeviceThermometer,
		DisplayName: "digital thermometer",
		Steps: []Step{
			{"Prepare the thermometer", "Clean the tip with an alcohol wipe and let it dry. Press the power button and wait for the ready signal.",
				[]string{"Tip is clean and dry", "Display shows ready"}},
			{"Position the thermometer", "Place the tip under the tongue, toward the back of the mouth, and close your lips gently around it.",
				[]string{"Tip is under the tongue", "Lips are closed"}},
			{"Take the reading", "Keep still and breathe through your nose until the thermometer beeps.",
				[]string{"Do not talk or bite", "Wait for the beep"}},
			{"Read the result", "Remove the thermometer and read the number on the display.",
				[]string{"Note the temperature and unit", "If the reading seems unusual, contact a healthcare professional"}},
			{"Clean and store", "Clean the tip again, switch the thermometer off and store it in its case.",
				[]string{"Tip is cleaned", "Device is switched off"}},
		},
	},
	types.DeviceBloodPressureMonitor: {
		Type:        types.DeviceBloodPressureMonitor,
		DisplayName: "blood pressure monitor",
		Steps: []Step{
			{"Rest before measuring", "Sit in a chair with your back supported and feet flat on the floor. Rest quietly for five minutes.",
				[]string{"Back is supported", "Feet are flat", "Rested for five minutes"}},
			{"Put on the cuff", "Wrap the cuff around your bare upper arm, about two centimetres above the elbow, with the tube on the inside of the arm.",
				[]string{"Cuff is on bare skin", "Cuff is snug but allows one finger underneath"}},
			{"Position your arm", "Rest your arm on a table so the cuff is level with your heart. Keep your palm facing up.",
				[]string{"Cuff is at heart level", "Arm is relaxed"}},
			{"Start the measurement", "Press the start button. Stay still and do not talk while the cuff inflates and deflates.",
				[]string{"Stay still", "Do not talk"}},
			{"Record the result", "Write down the systolic and diastolic numbers and the pulse. Remove the cuff.",
				[]string{"Both numbers recorded", "If the reading seems unusual, contact a healthcare professional"}},
		},
	},
	types.DevicePulseOximeter: {
		Type:        types.DevicePulseOximeter,
		DisplayName: "pulse oximeter",
		Steps: []Step{
			{"Prepare your hand", "Remove nail polish from the finger you will use and warm your hands if they are cold.",
				[]string{"No nail polish", "Hands are warm"}},
			{"Attach the oximeter", "Open the clip and place your index or middle finger inside, nail facing up.",
				[]string{"Finger is fully inserted", "Nail faces the display"}},
			{"Switch it on", "Press the button and keep your hand still, resting at chest level.",
				[]string{"Display turns on", "Hand is still"}},
			{"Wait for a stable reading", "Wait until the numbers stop changing, usually about 30 seconds.",
				[]string{"SpO2 value is stable", "Pulse value is stable"}},
			{"Record and remove", "Note the oxygen saturation and pulse, then remove the oximeter.",
				[]string{"Values recorded", "If the reading seems unusual, contact a healthcare professional"}},
		},
	},
	types.DeviceGlucoseMeter: {
		Type:        types.DeviceGlucoseMeter,
		DisplayName: "blood glucose meter",
		Steps: []Step{
			{"Wash and dry your hands", "Wash your hands with warm soapy water and dry them completely.",
				[]string{"Hands are clean", "Hands are dry"}},
			{"Insert a test strip", "Insert a new test strip into the meter. The meter turns on automatically.",
				[]string{"Strip is new", "Meter displays the blood drop symbol"}},
			{"Prick your finger", "Use the lancing device on the side of your fingertip to get a small drop of blood.",
				[]string{"Use a new lancet", "Drop is large enough"}},
			{"Apply the blood", "Touch the edge of the test strip to the drop and wait for the countdown.",
				[]string{"Strip is filled", "Countdown started"}},
			{"Read and record", "Read the result, record it, and dispose of the strip and lancet safely.",
				[]string{"Result recorded", "If the reading seems unusual, contact a healthcare professional"}},
		},
	},
	types.DeviceNebulizer: {
		Type:        types.DeviceNebulizer,
		DisplayName: "nebulizer",
		Steps: []Step{
			{"Assemble the nebulizer", "Connect the tubing to the compressor and to the medicine cup.",
				[]string{"Tubing is firmly connected", "Compressor is on a flat surface"}},
			{"Add the medicine", "Pour the prescribed dose into the medicine cup and close it.",
				[]string{"Correct dose", "Cup is closed"}},
			{"Attach the mouthpiece", "Attach the mouthpiece or mask to the medicine cup.",
				[]string{"Mouthpiece is secure"}},
			{"Breathe the treatment", "Switch the compressor on, sit upright and breathe slowly through your mouth until the mist stops.",
				[]string{"Sitting upright", "Slow, deep breaths"}},
			{"Clean the parts", "Switch off, disassemble, and rinse the cup and mouthpiece. Let them air dry.",
				[]string{"Parts rinsed", "Parts drying"}},
		},
	},
}

// Lookup returns the catalog entry for a device type
func Lookup(deviceType types.DeviceType) (*Device, bool) {
	d, ok := devices[deviceType]
	return d, ok
}

// DeviceTypes returns every known device type in sorted order
func DeviceTypes() []types.DeviceType {
	out := make([]types.DeviceType, 0, len(devices))
	for t := range devices {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

const chatFallbackText = "I'm sorry, I can't reach the guidance assistant right now. " +
	"Please follow the printed instructions that came with your device. " +
	"If a reading looks unusual or you feel unwell, contact a healthcare professional."

// StaticGuidance renders the canned step in the same JSON shape the models are asked for.
// The request must already be validated against the catalog.
func StaticGuidance(req types.GuidanceRequest) *types.ProviderResult {
	text := ""
	if d, ok := Lookup(req.DeviceType); ok {
		if step, ok := d.Step(req.StepNumber); ok {
			data, _ := json.Marshal(step)
			text = string(data)
		}
	}
	return &types.ProviderResult{
		Text:          text,
		Provider:      types.ProviderStatic,
		IsAIGenerated: false,
		Language:      types.DefaultLanguage,
	}
}

// StaticChat returns the canned chat reply
func StaticChat() *types.ProviderResult {
	return &types.ProviderResult{
		Text:          chatFallbackText,
		Provider:      types.ProviderStatic,
		IsAIGenerated: false,
		Language:      types.DefaultLanguage,
	}
}
