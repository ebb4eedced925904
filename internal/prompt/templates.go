package prompt

import "github.com/Denis-Chistyakov/Medguide/pkg/types"

// languageTemplate holds the language-specific parts of a prompt
type languageTemplate struct {
	Name   string // English name, used in instructions to the model
	Native string // Native name, reinforces the reply language
}

var languageTemplates = map[types.Language]languageTemplate{
	types.LanguageEnglish:    {"English", "English"},
	types.LanguageMandarin:   {"Mandarin Chinese", "简体中文"},
	types.LanguageThai:       {"Thai", "ภาษาไทย"},
	types.LanguageTamil:      {"Tamil", "தமிழ்"},
	types.LanguageKhmer:      {"Khmer", "ភាសាខ្មែរ"},
	types.LanguageLao:        {"Lao", "ພາສາລາວ"},
	types.LanguageBurmese:    {"Burmese", "မြန်မာဘာသာ"},
	types.LanguageVietnamese: {"Vietnamese", "Tiếng Việt"},
	types.LanguageMalay:      {"Malay", "Bahasa Melayu"},
	types.LanguageIndonesian: {"Indonesian", "Bahasa Indonesia"},
	types.LanguageFilipino:   {"Filipino", "Filipino"},
}

var stylePrefixes = map[types.Style]string{
	types.StyleDirect: "Give short, clear, imperative instructions. One action per sentence. " +
		"No filler.",
	types.StyleGentle: "Use a warm, calm and reassuring tone, as if guiding an elderly person " +
		"who is nervous about using the device. Keep sentences simple.",
	types.StyleDetailed: "Give thorough instructions, including why each action matters and " +
		"common mistakes to avoid.",
}

const chatPreamble = `You are Medguide, a friendly assistant that helps people use home medical devices such as thermometers, blood pressure monitors, pulse oximeters, glucose meters and nebulizers.

Safety rules:
- Explain how to use the device and how to read its display. Do not give diagnostic medical advice.
- If the user reports an abnormal or worrying reading, tell them to contact a healthcare professional or emergency services.
- Never suggest changing medication or doses.
- Keep answers short and practical.`
