// Package textnorm prepares raw news text for tokenization.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lowercases s using full Unicode case mapping and replaces every
// rune outside [a-z0-9] with a single space. Runs of spaces are not
// collapsed: each replaced rune yields exactly one space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// cases.Caser is stateful; a fresh one per call keeps Normalize safe for
	// concurrent use.
	lowered := cases.Lower(language.Und).String(s)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte(' ')
	}
	return b.String()
}
