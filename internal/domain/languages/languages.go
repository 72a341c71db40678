// Package languages holds the static language tables used by the engine.
package languages

import "strings"

// DefaultPreferred is used when the caller does not request a language.
var DefaultPreferred = []string{"es", "en", "es-419", "en-US"}

// Supported lists the codes the recognition engine accepts.
var Supported = []string{
	"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh",
	"ar", "hi", "nl", "pl", "tr", "vi", "th", "cs", "el", "he",
	"hu", "id", "ms", "no", "ro", "sk", "sv", "uk", "ca", "da",
	"fi", "hr", "lt", "lv", "sl", "et", "bg", "ta", "te", "ml",
}

var names = map[string]string{
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "russian": "ru", "japanese": "ja",
	"korean": "ko", "chinese": "zh", "arabic": "ar", "hindi": "hi",
	"dutch": "nl", "polish": "pl", "turkish": "tr", "vietnamese": "vi",
	"thai": "th", "czech": "cs", "greek": "el", "hebrew": "he",
	"hungarian": "hu", "indonesian": "id", "malay": "ms", "norwegian": "no",
	"romanian": "ro", "slovak": "sk", "swedish": "sv", "ukrainian": "uk",
	"catalan": "ca", "danish": "da", "finnish": "fi", "croatian": "hr",
	"lithuanian": "lt", "latvian": "lv", "slovenian": "sl", "estonian": "et",
	"bulgarian": "bg", "tamil": "ta", "telugu": "te", "malayalam": "ml",
}

// Preferred returns the ordered language list for a request.
func Preferred(requested string, fallback []string) []string {
	if r := strings.TrimSpace(requested); r != "" {
		return []string{r}
	}
	if len(fallback) > 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), DefaultPreferred...)
}

func IsSupported(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, c := range Supported {
		if c == code {
			return true
		}
	}
	return false
}

// Normalize maps an engine language report, either a code or an English
// name, to a two-letter code. Unknown values pass through lowercased.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := names[s]; ok {
		return c
	}
	return s
}

// Tag normalizes a requested language: English names become codes, other
// values keep their casing so regional tags like "en-US" still match tracks.
func Tag(s string) string {
	s = strings.TrimSpace(s)
	if c, ok := names[strings.ToLower(s)]; ok {
		return c
	}
	return s
}
