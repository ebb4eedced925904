package language

// Package language classifies free text into one of the supported languages.
// Uses Unicode script ranges, a Vietnamese tone-mark class and small lexicons.
import (
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// scriptRule maps a Unicode script to a language
type scriptRule struct {
	lang  types.Language
	table *unicode.RangeTable
}

// Order is the tie-break policy for mixed-script input, most specific first.
var scriptRules = []scriptRule{
	{types.LanguageMandarin, unicode.Han},
	{types.LanguageThai, unicode.Thai},
	{types.LanguageTamil, unicode.Tamil},
	{types.LanguageKhmer, unicode.Khmer},
	{types.LanguageLao, unicode.Lao},
	{types.LanguageBurmese, unicode.Myanmar},
}

// vietnameseMarks holds Latin vowels with Vietnamese-only tone or shape marks
const vietnameseMarks = "ạảấầẩẫậắằẳẵặẹẻẽếềểễệỉịọỏốồổỗộớờởỡợụủứừửữựỳỵỷỹăđĩũơư"

// lexicon is a curated list of words and phrases for one language
type lexicon struct {
	lang  types.Language
	words []string
}

// Malay must be checked before Indonesian: they share most everyday vocabulary,
// so only Malay-only words are listed for Malay and the wider set goes to Indonesian.
var lexicons = []lexicon{
	{types.LanguageMalay, []string{
		"awak", "kerana", "sahaja", "macam mana", "bagaimanakah", "sukat",
		"sikit", "cakap", "nak", "ubat", "doktor",
	}},
	{types.LanguageIndonesian, []string{
		"bagaimana", "tidak", "saya", "bisa", "gimana", "apa", "cara", "menggunakan",
		"mengukur", "tolong", "terima kasih", "dengan", "yang", "adalah", "dokter",
		"obat", "berapa", "sudah", "belum", "boleh", "kenapa", "betul", "tekanan darah",
		"apakah", "sekarang",
	}},
	{types.LanguageFilipino, []string{
		"paano", "ang", "ng", "po", "salamat", "gamitin", "ano", "ito", "mga",
		"hindi", "oo", "sukatin", "presyon", "kailangan",
	}},
}

// Detect returns the language of text, or the default language when nothing matches
func Detect(text string) types.Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.DefaultLanguage
	}

	for _, rule := range scriptRules {
		for _, r := range text {
			if unicode.Is(rule.table, r) {
				return rule.lang
			}
		}
	}

	lower := strings.ToLower(text)
	if strings.ContainsAny(lower, vietnameseMarks) {
		return types.LanguageVietnamese
	}

	padded := " " + strings.Join(tokenize(lower), " ") + " "
	if padded == "  " {
		return types.DefaultLanguage
	}
	for _, lex := range lexicons {
		for _, w := range lex.words {
			if strings.Contains(padded, " "+w+" ") {
				return lex.lang
			}
		}
	}

	return types.DefaultLanguage
}

// tokenize splits on anything that is not a letter
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// Normalize maps a caller-supplied language tag (e.g. "th-TH", "zh-Hans") to a
// supported base language, falling back to the default language.
func Normalize(code string) types.Language {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.DefaultLanguage
	}

	// Filipino is commonly sent as "fil"
	if strings.EqualFold(code, "fil") || strings.HasPrefix(strings.ToLower(code), "fil-") {
		return types.LanguageFilipino
	}

	tag, err := language.Parse(code)
	if err != nil {
		return types.DefaultLanguage
	}
	base, _ := tag.Base()
	lang := types.Language(base.String())
	if lang == "fil" {
		return types.LanguageFilipino
	}
	if !lang.IsSupported() {
		return types.DefaultLanguage
	}
	return lang
}
