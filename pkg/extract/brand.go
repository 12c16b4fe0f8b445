package extract

import (
	"regexp"
	"strings"
)

// knownBrands is ordered; when several appear in the text the earliest entry wins.
var knownBrands = []string{
	"DAEWOO", "TOYOTA", "NEXIA", "LEXUS", "HYUNDAI", "KIA", "BMW",
	"MERCEDES", "VOLKSWAGEN", "CHEVROLET", "LADA", "VAZ",
	"COBALT", "GENTRA", "LACETTI", "MATIZ", "SPARK", "DAMAS", "LABO",
	"CAPTIVA", "MALIBU", "TRACKER", "ISUZU", "BYD",
}

var (
	// longer markers first so MARKASI is not cut to MARKA
	brandLabelRE = regexp.MustCompile(`\b(?:RUSUMI|RUSUM|MARKASI|MARKA|MODELI|MODEL|BRAND)\b[\s:.\-=]*([A-Z0-9]{3,20})\b`)
	brandTokenRE = regexp.MustCompile(`\b[A-Z]{3,20}\b`)
)

// KnownBrands returns a copy of the brand list in priority order.
func KnownBrands() []string {
	out := make([]string, len(knownBrands))
	copy(out, knownBrands)
	return out
}

// Brand returns the vehicle brand: a known name, else a labeled value, else the
// first alphabetic word of 3 to 20 letters.
func Brand(text string) string {
	up := strings.ToUpper(text)
	for _, b := range knownBrands {
		if strings.Contains(up, b) {
			return b
		}
	}
	if m := brandLabelRE.FindStringSubmatch(up); len(m) >= 2 {
		return m[1]
	}
	return brandTokenRE.FindString(up)
}
