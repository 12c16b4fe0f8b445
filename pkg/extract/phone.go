package extract

import (
	"regexp"
	"strings"
)

var (
	phoneRunRE   = regexp.MustCompile(`\+?\d{9,12}`)
	phoneLocalRE = regexp.MustCompile(`\b\d{9}\b`)
)

// Phone returns a 9 to 12 digit phone number without a leading plus.
// Digits are first joined across punctuation so "+998 (90) 123-45-67" is found;
// a clean standalone 9-digit local number is the fallback.
func Phone(text string) string {
	if m := phoneRunRE.FindString(phoneChars(text)); m != "" {
		return strings.TrimPrefix(m, "+")
	}
	// Unreachable in practice: a standalone 9-digit token already forms a run
	// in the stripped text. Kept as the documented second stage.
	return phoneLocalRE.FindString(text)
}

// phoneChars keeps only digits and plus signs.
func phoneChars(text string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, text)
}
