package util

import (
	"strings"
	"unicode/utf8"
)

// MaxLabelLength caps imported entity labels and project names, in runes.
const MaxLabelLength = 256

// SanitizeText drops invalid UTF-8 and NUL bytes. Postgres rejects both in
// text columns.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}
	return strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
}

// CleanLabel sanitizes a display label, collapses runs of whitespace and
// cuts it to MaxLabelLength runes.
func CleanLabel(value string) string {
	label := strings.Join(strings.Fields(SanitizeText(value)), " ")
	if utf8.RuneCountInString(label) <= MaxLabelLength {
		return label
	}
	return strings.TrimSpace(string([]rune(label)[:MaxLabelLength]))
}

// CleanType sanitizes an entity or relationship type. Types are matched
// verbatim by filters, so only surrounding whitespace is removed.
func CleanType(value string) string {
	return strings.TrimSpace(SanitizeText(value))
}
