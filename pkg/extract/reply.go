package extract

import "strings"

// NothingFound prefixes the diagnostic reply sent when every field is empty.
const NothingFound = "Hech narsa topilmadi. OCR natija:\n\n"

// DiagnosticLimit caps how many characters of raw OCR text go into a diagnostic reply.
const DiagnosticLimit = 1500

// FormatReply renders rec as a single line, or falls back to a dump of the
// recognized text when nothing matched.
func FormatReply(rec Record, text string) string {
	if rec.Empty() {
		return NothingFound + truncateRunes(text, DiagnosticLimit)
	}
	fields := rec.Fields()
	vals := make([]string, 0, len(fields))
	for _, f := range fields {
		vals = append(vals, f.Value)
	}
	return strings.TrimSpace(strings.Join(vals, "  "))
}

// truncateRunes keeps the first max characters without splitting a UTF-8 sequence.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
