package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB)
const DefaultLogMaxLen = 1024

// ErrorMessageMaxLen bounds provider error messages copied into status events.
const ErrorMessageMaxLen = 600

// TruncateLog truncates long strings for verbose logging.
// This keeps raw probe payloads readable in the refresher log.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// Ellipsize cuts s to at most maxRunes characters and appends "…" when it
// had to cut. Unlike TruncateLog the result is meant for end users.
func Ellipsize(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "…"
}
