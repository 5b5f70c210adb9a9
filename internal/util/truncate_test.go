package util

import "testing"

func TestTruncateLog_ShortString(t *testing.T) {
	input := "short log"
	result := TruncateLog(input, DefaultLogMaxLen)
	if result != input {
		t.Errorf("TruncateLog() should not truncate short strings, got %q", result)
	}
}

func TestTruncateLog_LongString(t *testing.T) {
	input := "1234567890abcdefghij" // 20 chars
	result := TruncateLog(input, 10)
	if result != "1234567890... [truncated, 20 bytes total]" {
		t.Errorf("TruncateLog() = %q, want \"1234567890... [truncated, 20 bytes total]\"", result)
	}
}

func TestTruncateBytes_LongBytes(t *testing.T) {
	input := make([]byte, 2000)
	for i := range input {
		input[i] = 'x'
	}
	result := TruncateBytes(input)
	if len(result) <= DefaultLogMaxLen {
		t.Errorf("TruncateBytes() result should be longer than maxLen due to suffix, got len=%d", len(result))
	}
	if result[:DefaultLogMaxLen] != string(input[:DefaultLogMaxLen]) {
		t.Error("TruncateBytes() should preserve first DefaultLogMaxLen bytes")
	}
}

func TestEllipsize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "quota exceeded", max: 600, want: "quota exceeded"},
		{name: "exact", in: "abcde", max: 5, want: "abcde"},
		{name: "cut", in: "abcdefgh", max: 3, want: "abc…"},
		{name: "multibyte", in: "ééééé", max: 2, want: "éé…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ellipsize(tt.in, tt.max); got != tt.want {
				t.Fatalf("Ellipsize(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		start, end int
		want       string
	}{
		{name: "empty", value: "   ", start: 10, end: 6, want: ""},
		{name: "short kept", value: "fw_short", start: 10, end: 6, want: "fw_short"},
		{name: "anthropic", value: "sk-ant-REDACTED", start: 12, end: 6, want: "sk-ant-api03…XYZ123"},
		{name: "fireworks", value: "fw_1234567890abcdefghij", start: 10, end: 6, want: "fw_1234567…efghij"},
		{name: "negative keeps", value: "abcdefgh", start: -1, end: -1, want: "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.value, tt.start, tt.end); got != tt.want {
				t.Fatalf("MaskSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}
