package extract

import (
	"regexp"
	"strings"
)

var certificateRE = regexp.MustCompile(`\b[A-Z]{2,4}\d{4,12}\b`)

// Certificate returns the first series+number token such as AAF3799360.
func Certificate(text string) string {
	up := strings.ToUpper(text)
	for _, cand := range certificateRE.FindAllString(up, -1) {
		if isBareYear(cand) {
			continue
		}
		return cand
	}
	return ""
}

// isBareYear is true for a lone 4-digit run, which is a year and never a certificate id.
func isBareYear(s string) bool {
	return len(s) == 4 && onlyDigits(s) == s
}
