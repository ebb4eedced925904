package language

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

func TestDetect_Scripts(t *testing.T) {
	tests := []struct {
		name string
		text string
		want types.Language
	}{
		{"mandarin", "体温计怎么用", types.LanguageMandarin},
		{"thai", "วิธีใช้เครื่องวัดความดัน", types.LanguageThai},
		{"tamil", "வெப்பமானியை எப்படி பயன்படுத்துவது", types.LanguageTamil},
		{"khmer", "របៀបប្រើទែម៉ូម៉ែត្រ", types.LanguageKhmer},
		{"lao", "ວິທີໃຊ້ເຄື່ອງວັດອຸນຫະພູມ", types.LanguageLao},
		{"burmese", "အပူချိန်တိုင်းကိရိယာ", types.LanguageBurmese},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.text)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, types.DefaultLanguage, got)
		})
	}
}

func TestDetect_Vietnamese(t *testing.T) {
	assert.Equal(t, types.LanguageVietnamese, Detect("Làm thế nào để sử dụng nhiệt kế?"))
	assert.Equal(t, types.LanguageVietnamese, Detect("ĐO HUYẾT ÁP"))
}

func TestDetect_Lexicons(t *testing.T) {
	assert.Equal(t, types.LanguageMalay, Detect("Macam mana nak guna termometer ni?"))
	assert.Equal(t, types.LanguageIndonesian, Detect("Bagaimana cara menggunakan termometer?"))
	assert.Equal(t, types.LanguageFilipino, Detect("Paano gamitin ang thermometer?"))
	assert.Equal(t, types.LanguageEnglish, Detect("How do I use this thermometer?"))
}

func TestDetect_MalayBeforeIndonesian(t *testing.T) {
	// "sukat" is Malay-only, "saya" is shared; the Malay lexicon wins
	assert.Equal(t, types.LanguageMalay, Detect("saya boleh sukat sekarang"))
}

func TestDetect_IndonesianSharedVocabulary(t *testing.T) {
	for _, text := range []string{
		"Bagaimana cara mengukur tekanan darah saya?",
		"Apakah saya boleh minum obat sekarang?",
		"Kenapa hasilnya tidak betul?",
		"Tekanan darah",
	} {
		assert.Equal(t, types.LanguageIndonesian, Detect(text), "text %q", text)
	}
}

func TestDetect_MixedScriptUsesRuleOrder(t *testing.T) {
	// Thai characters come first in the string, but the Han rule is checked first
	assert.Equal(t, types.LanguageMandarin, Detect("วัด 体温"))
	// Scripts beat lexicons
	assert.Equal(t, types.LanguageThai, Detect("bagaimana วัด"))
}

func TestDetect_DefaultLanguage(t *testing.T) {
	for _, text := range []string{"", "   ", "12345", "!!! ??? ...", "120/80 mmHg 36.6"} {
		assert.Equal(t, types.DefaultLanguage, Detect(text), "text %q", text)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]types.Language{
		"th-TH":   types.LanguageThai,
		"zh-Hans": types.LanguageMandarin,
		"VI":      types.LanguageVietnamese,
		"ms":      types.LanguageMalay,
		"fil":     types.LanguageFilipino,
		"fil-PH":  types.LanguageFilipino,
		"fr":      types.LanguageEnglish,
		"":        types.LanguageEnglish,
		"!!":      types.LanguageEnglish,
	}

	for code, want := range tests {
		assert.Equal(t, want, Normalize(code), "code %q", code)
	}
}
