package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

func TestCatalog_EveryDeviceHasFiveSteps(t *testing.T) {
	for _, dt := range DeviceTypes() {
		d, ok := Lookup(dt)
		require.True(t, ok)
		assert.Equal(t, 5, d.TotalSteps(), "device %s", dt)
		for i, s := range d.Steps {
			assert.NotEmpty(t, s.Title, "device %s step %d", dt, i+1)
			assert.GreaterOrEqual(t, len(s.Checkpoints), 1)
		}
	}
}

func TestDevice_StepBounds(t *testing.T) {
	d, ok := Lookup(types.DeviceThermometer)
	require.True(t, ok)

	_, ok = d.Step(0)
	assert.False(t, ok)
	_, ok = d.Step(6)
	assert.False(t, ok)
	s, ok := d.Step(1)
	assert.True(t, ok)
	assert.Equal(t, "Prepare the thermometer", s.Title)
}

func TestStaticGuidance(t *testing.T) {
	res := StaticGuidance(types.GuidanceRequest{
		DeviceType: types.DeviceBloodPressureMonitor,
		StepNumber: 3,
		Language:   types.LanguageThai,
		Style:      types.StyleDirect,
	})

	assert.Equal(t, types.ProviderStatic, res.Provider)
	assert.False(t, res.IsAIGenerated)

	var step Step
	require.NoError(t, json.Unmarshal([]byte(res.Text), &step))
	assert.Equal(t, "Position your arm", step.Title)
}

func TestStaticChat(t *testing.T) {
	res := StaticChat()
	assert.Equal(t, types.ProviderStatic, res.Provider)
	assert.False(t, res.IsAIGenerated)
	assert.Contains(t, res.Text, "healthcare professional")
}
