package utils

import "strings"

// MaskSecret keeps the last four characters of a credential for log output.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", 4) + s[len(s)-4:]
}
