package rewriter

import (
	"strings"
	"unicode"
)

// Clean removes the sentinel and every rune that is not a letter, digit
// or whitespace, then collapses runs of whitespace.
func Clean(text string) string {
	text = strings.ReplaceAll(text, Sentinel, "")
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
