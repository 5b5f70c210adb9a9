package util

import "strings"

// MaskSecret keeps the first keepStart and last keepEnd characters of a
// credential and replaces the middle with "…". Short values are returned as is.
func MaskSecret(value string, keepStart, keepEnd int) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}
	if keepStart < 0 {
		keepStart = 0
	}
	if keepEnd < 0 {
		keepEnd = 0
	}
	if len(s) <= keepStart+keepEnd+1 {
		return s
	}
	return s[:keepStart] + "…" + s[len(s)-keepEnd:]
}
