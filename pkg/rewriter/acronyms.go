package rewriter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// minAcronymTokenLen keeps short words out of fuzzy matching.
const minAcronymTokenLen = 4

type acronymCorrector struct {
	known       []string
	lower       map[string]bool
	keep        map[string]bool
	maxDistance int
}

func newAcronymCorrector(acronyms, keepWords []string, maxDistance int) *acronymCorrector {
	c := &acronymCorrector{
		maxDistance: maxDistance,
		lower:       make(map[string]bool),
		keep:        make(map[string]bool),
	}
	for _, w := range keepWords {
		c.keep[strings.ToLower(strings.TrimSpace(w))] = true
	}
	for _, a := range acronyms {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		c.known = append(c.known, a)
		c.lower[strings.ToLower(a)] = true
	}
	return c
}

// Correct replaces near-miss spellings of known acronyms. A token is a
// candidate only when it has the acronym's rune length and lies within
// maxDistance edits; correctly spelt tokens are left untouched.
func (c *acronymCorrector) Correct(text string) string {
	if c.maxDistance <= 0 || len(c.known) == 0 {
		return text
	}

	fields := strings.Fields(text)
	changed := false
	for i, field := range fields {
		start := strings.IndexFunc(field, isWordRune)
		end := strings.LastIndexFunc(field, isWordRune)
		if start < 0 {
			continue
		}
		_, lastSize := utf8.DecodeRuneInString(field[end:])
		core := field[start : end+lastSize]
		if fixed, ok := c.match(core); ok {
			fields[i] = field[:start] + fixed + field[end+lastSize:]
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

func (c *acronymCorrector) match(token string) (string, bool) {
	n := utf8.RuneCountInString(token)
	lower := strings.ToLower(token)
	if n < minAcronymTokenLen || c.lower[lower] || c.keep[lower] {
		return "", false
	}

	best, bestDist := "", c.maxDistance+1
	for _, a := range c.known {
		if utf8.RuneCountInString(a) != n {
			continue
		}
		if d := levenshtein.ComputeDistance(lower, strings.ToLower(a)); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best, best != ""
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
