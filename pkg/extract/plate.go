package extract

import (
	"regexp"
	"strings"
)

// Plates are matched loosely: two digits then alphanumerics. OCR swaps letters
// and digits often enough that a strict region/letter/digit shape misses real plates.
var (
	plateRE      = regexp.MustCompile(`\b\d{2}[A-Z0-9]{1,8}[A-Z]{0,3}\b`)
	plateStripRE = regexp.MustCompile(`[\s\-]`)
)

// Plate returns the first plate-shaped token, or "" if none.
func Plate(text string) string {
	up := plateStripRE.ReplaceAllString(strings.ToUpper(text), "")
	return plateRE.FindString(up)
}
