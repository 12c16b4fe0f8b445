package extract

import "regexp"

var dateRE = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-](?:19|20)\d{2}\b`)

// Date returns the first dd.mm.yyyy style date, separators kept as written.
func Date(text string) string {
	return dateRE.FindString(text)
}
