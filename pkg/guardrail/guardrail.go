// Package guardrail implements the safety gate that screens a raw query
// before any rewriting or answering happens.
//
// The gate asks the language model gateway for a single Safe/Unsafe
// token. Output that is not one of the two tokens is a protocol violation
// and surfaces as ErrNonConforming, never as a silent pass.
package guardrail

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/provider"
)

//go:embed prompt.txt
var systemPrompt string

// Verdict is the gate's categorical judgment.
type Verdict string

const (
	Safe   Verdict = "safe"
	Unsafe Verdict = "unsafe"
)

// ErrNonConforming is returned when the model answers with anything other
// than the two verdict tokens.
var ErrNonConforming = errors.New("guardrail output is not Safe or Unsafe")

// Config holds gate settings.
type Config struct {
	Model    string
	Sampling provider.Sampling

	// BlockedTerms are matched case-insensitively on word boundaries and
	// reject the query without a gateway call.
	BlockedTerms []string

	// SystemPrompt replaces the embedded policy prompt when set.
	SystemPrompt string
}

// Gate classifies raw queries as Safe or Unsafe.
type Gate struct {
	provider provider.Provider
	model    string
	sampling provider.Sampling
	prompt   string
	blocked  *regexp.Regexp
}

// New creates a Gate backed by p.
func New(p provider.Provider, cfg Config) (*Gate, error) {
	if p == nil {
		return nil, fmt.Errorf("guardrail: provider is required")
	}

	g := &Gate{
		provider: p,
		model:    cfg.Model,
		sampling: cfg.Sampling,
		prompt:   systemPrompt,
	}
	if cfg.SystemPrompt != "" {
		g.prompt = cfg.SystemPrompt
	}

	var terms []string
	for _, t := range cfg.BlockedTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, regexp.QuoteMeta(t))
		}
	}
	if len(terms) > 0 {
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(terms, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("guardrail: compiling blocked terms: %w", err)
		}
		g.blocked = re
	}
	return g, nil
}

// Classify judges query. It never mutates conversation state.
func (g *Gate) Classify(ctx context.Context, query string) (Verdict, error) {
	if g.blocked != nil && g.blocked.MatchString(query) {
		debug.Log("guardrail", "blocked term matched", "match", g.blocked.FindString(query))
		return Unsafe, nil
	}

	req := &provider.ProviderRequest{
		Model: g.model,
		Messages: []provider.ProviderMessage{
			provider.SystemMessage(g.prompt),
			provider.UserMessage(UserPrompt(query)),
		},
	}
	g.sampling.Apply(req)

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	debug.Log("guardrail", "model output", "output", resp.Text)
	return ParseVerdict(resp.Text)
}

// UserPrompt frames the query as content to be judged.
func UserPrompt(query string) string {
	return "Follow the system instructions and respond to the query:" + query + "."
}

// ParseVerdict normalises model output to a Verdict. Surrounding
// whitespace, quotes and a trailing period are tolerated; anything else
// is ErrNonConforming.
func ParseVerdict(output string) (Verdict, error) {
	s := strings.TrimSpace(output)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(strings.TrimSuffix(s, "."))

	switch {
	case strings.EqualFold(s, string(Safe)):
		return Safe, nil
	case strings.EqualFold(s, string(Unsafe)):
		return Unsafe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrNonConforming, debug.Truncate(output, 80))
	}
}
