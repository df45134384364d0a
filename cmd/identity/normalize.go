package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeID trims surrounding whitespace from a subject id.
// Ids are compared byte-wise after trimming; they are not case-folded.
func NormalizeID(s string) string {
	return strings.TrimSpace(s)
}
