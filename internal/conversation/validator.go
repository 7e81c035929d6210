package conversation

import (
	"strings"
	"unicode"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 13
)

var phoneSeparators = strings.NewReplacer("+", "", " ", "", "-", "", ".", "", "(", "", ")", "")

// IsNonEmpty reports whether text has content after trimming.
func IsNonEmpty(text string) bool {
	return strings.TrimSpace(text) != ""
}

// NormalizePhone strips common separators from a phone number.
func NormalizePhone(text string) string {
	return phoneSeparators.Replace(strings.TrimSpace(text))
}

// IsValidPhone reports whether text is a phone number of 10 to 13 digits
// once separators are removed.
func IsValidPhone(text string) bool {
	digits := NormalizePhone(text)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return false
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
