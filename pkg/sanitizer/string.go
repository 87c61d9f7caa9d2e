package sanitizer

import (
	"strings"
	"unicode"
)

// TrimAndNormalize trims the string and collapses internal whitespace runs
// into single spaces.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeLocation(location string) string {
	return TrimAndNormalize(location)
}

func NormalizeMessageBody(body string) string {
	return strings.TrimSpace(body)
}

func NormalizeLanguage(lang string) string {
	return strings.ToLower(TrimAndNormalize(lang))
}
