package generation

import "unicode"

// Language is a detected response language.
type Language struct {
	Code string
	Name string
}

var English = Language{Code: "en", Name: "English"}

var scripts = []struct {
	table *unicode.RangeTable
	lang  Language
}{
	{unicode.Arabic, Language{Code: "ar", Name: "Arabic"}},
	{unicode.Hebrew, Language{Code: "he", Name: "Hebrew"}},
	{unicode.Cyrillic, Language{Code: "ru", Name: "Russian"}},
	{unicode.Greek, Language{Code: "el", Name: "Greek"}},
	{unicode.Hangul, Language{Code: "ko", Name: "Korean"}},
	{unicode.Han, Language{Code: "zh", Name: "Chinese"}},
	{unicode.Devanagari, Language{Code: "hi", Name: "Hindi"}},
}

var japanese = Language{Code: "ja", Name: "Japanese"}

// DetectLanguage picks the language of the first non-Latin script found in
// text. Any kana makes the text Japanese, even when it opens with kanji.
// Latin-only text is treated as English.
func DetectLanguage(text string) Language {
	found := English
	for _, r := range text {
		if r < 0x0370 {
			continue
		}
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			return japanese
		}
		if found != English {
			continue
		}
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				found = s.lang
				break
			}
		}
	}
	return found
}
