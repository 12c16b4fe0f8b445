package ocr

// Snippet returns at most max characters of s for logging.
func Snippet(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
