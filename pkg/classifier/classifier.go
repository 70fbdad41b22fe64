// Package classifier labels an answer engine reply by matching it against
// versioned phrase sets.
package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Label is the classification of an answer.
type Label string

const (
	// Delivered means neither phrase set matched.
	Delivered Label = "delivered"
	// NoContext means the engine said its context lacked the answer.
	NoContext Label = "no_context"
	// Refused means the engine declined to answer.
	Refused Label = "refused"
	// Ambiguous means there was nothing to classify.
	Ambiguous Label = "ambiguous"
)

// DefaultVersion identifies the built-in phrase table.
const DefaultVersion = "2024-01"

// PhraseTable holds the phrase sets used for matching.
type PhraseTable struct {
	Version   string   `yaml:"version"`
	Refusal   []string `yaml:"refusal"`
	NoContext []string `yaml:"no_context"`
}

// DefaultTable returns the built-in phrase sets.
func DefaultTable() PhraseTable {
	return PhraseTable{
		Version: DefaultVersion,
		Refusal: []string{
			"I am sorry, I may not be able to answer at this time",
			"I'm sorry, I may not be able to answer at this time",
			"I am sorry , I may not be able to answer at this time",
			"I am sorry,I may not be able to answer at this time",
			"I am sorry I may not be able to answer at this time",
		},
		NoContext: []string{
			"there is no specific mention",
			"there is no information available",
			"it is not specified",
			"there is no mention of",
			"context does not contain any information",
			"context does not contain information",
			"context does not mention",
		},
	}
}

// LoadTable reads a phrase table from a YAML file. Empty sets fall back
// to the defaults.
func LoadTable(path string) (PhraseTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PhraseTable{}, fmt.Errorf("reading phrase table: %w", err)
	}

	var t PhraseTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return PhraseTable{}, fmt.Errorf("parsing phrase table %s: %w", path, err)
	}

	def := DefaultTable()
	if len(t.Refusal) == 0 {
		t.Refusal = def.Refusal
	}
	if len(t.NoContext) == 0 {
		t.NoContext = def.NoContext
	}
	if t.Version == "" {
		t.Version = "custom"
	}
	return t, nil
}

// Classifier matches answers against a phrase table.
type Classifier struct {
	version   string
	refusal   []string
	noContext []string
}

// New compiles table into a Classifier.
func New(table PhraseTable) *Classifier {
	return &Classifier{
		version:   table.Version,
		refusal:   normalizeAll(table.Refusal),
		noContext: normalizeAll(table.NoContext),
	}
}

// Version returns the phrase table version.
func (c *Classifier) Version() string { return c.version }

// Classify labels text. Refusal phrases are checked before no-context
// phrases, so a reply containing both is Refused.
func (c *Classifier) Classify(text string) Label {
	norm := normalize(text)
	if norm == "" {
		return Ambiguous
	}
	if containsAny(norm, c.refusal) {
		return Refused
	}
	if containsAny(norm, c.noContext) {
		return NoContext
	}
	return Delivered
}

// normalize lowercases s and collapses whitespace runs.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
