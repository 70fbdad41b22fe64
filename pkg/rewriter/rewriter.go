// Package rewriter turns a follow-up question into a self-contained one
// using the recent user turns of the conversation.
//
// Scenario selection is delegated to the language model through a
// templated prompt. The local side handles what must not depend on the
// model: low-information passthrough, output parsing, acronym correction
// and cleaning.
package rewriter

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/provider"
)

const (
	// Sentinel terminates every model output.
	Sentinel = "<stop>"

	// ProfaneSentinel replaces the rewrite when the query is profane.
	ProfaneSentinel = "DO NOT USE PROFANE LANGUAGE"
)

// ErrEmptyRewrite is returned when the model output holds no text.
var ErrEmptyRewrite = errors.New("rewriter produced no text")

// ErrTruncatedRewrite is returned when the model hit its token limit before
// emitting the sentinel.
var ErrTruncatedRewrite = errors.New("rewriter output truncated before sentinel")

// finishLength is the finish reason of a completion cut at max_tokens.
const finishLength = "length"

//go:embed prompt.tmpl
var promptSource string

var promptTemplate = template.Must(template.New("rewriter").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).Parse(promptSource))

// DefaultAcronyms are the enterprise names users most often misspell.
var DefaultAcronyms = []string{"SFDC", "SUMMIT", "ASKGS", "JAIDA", "BWI", "JNJ", "IRIS", "Concur", "emarketplace"}

// DefaultKeepWords are ordinary words one edit away from an acronym.
var DefaultKeepWords = []string{"submit"}

// DefaultLowInfoTokens never get merged with history.
var DefaultLowInfoTokens = []string{"yes", "no", "ok", "okay", "sure", "come", "process", "tell", "continue", "thanks"}

// Config holds rewriter settings.
type Config struct {
	Model    string
	Sampling provider.Sampling

	// HistoryTurns is how many recent user turns feed the prompt.
	HistoryTurns int

	Acronyms []string

	// AcronymMaxDistance bounds the edit distance of a local correction.
	// Zero disables local correction.
	AcronymMaxDistance int

	// KeepWords are never corrected to an acronym.
	KeepWords []string

	LowInfoTokens []string
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Sampling:           provider.DefaultSampling(),
		HistoryTurns:       3,
		Acronyms:           DefaultAcronyms,
		AcronymMaxDistance: 1,
		KeepWords:          DefaultKeepWords,
		LowInfoTokens:      DefaultLowInfoTokens,
	}
}

// Result is the outcome of one rewrite.
type Result struct {
	// Text is the rewritten query with the sentinel removed.
	Text string

	// Terminated reports whether the model emitted the sentinel.
	Terminated bool

	// Profane is set when the model answered with ProfaneSentinel.
	Profane bool

	// Passthrough is set when the query was returned without a model call.
	Passthrough bool
}

// Rewriter rewrites queries through the language model gateway.
type Rewriter struct {
	provider provider.Provider
	cfg      Config
	acronyms *acronymCorrector
	lowInfo  map[string]bool
}

// New creates a Rewriter backed by p.
func New(p provider.Provider, cfg Config) (*Rewriter, error) {
	if p == nil {
		return nil, fmt.Errorf("rewriter: provider is required")
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}

	lowInfo := make(map[string]bool, len(cfg.LowInfoTokens))
	for _, tok := range cfg.LowInfoTokens {
		lowInfo[strings.ToLower(strings.TrimSpace(tok))] = true
	}

	return &Rewriter{
		provider: p,
		cfg:      cfg,
		acronyms: newAcronymCorrector(cfg.Acronyms, cfg.KeepWords, cfg.AcronymMaxDistance),
		lowInfo:  lowInfo,
	}, nil
}

// Rewrite returns a self-contained version of query given history.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []api.Turn) (Result, error) {
	oldChat := RewriteContext(history, r.cfg.HistoryTurns)

	if oldChat != "" && r.isLowInformation(query) {
		debug.Log("rewriter", "low-information query passed through", "query", query)
		return Result{Text: strings.TrimSpace(query), Terminated: true, Passthrough: true}, nil
	}

	prompt, err := r.Prompt(query, oldChat)
	if err != nil {
		return Result{}, err
	}
	debug.Raw("rewriter", prompt)

	req := &provider.ProviderRequest{
		Model: r.cfg.Model,
		Messages: []provider.ProviderMessage{
			provider.SystemMessage(prompt),
			provider.UserMessage("Follow the system instructions and respond to the query:" + query + "."),
		},
	}
	r.cfg.Sampling.Apply(req)

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return Result{}, err
	}
	debug.Log("rewriter", "model output", "output", resp.Text)

	res, err := Parse(resp.Text)
	if err != nil {
		return Result{}, err
	}
	if !res.Terminated {
		if resp.FinishReason == finishLength {
			return Result{}, fmt.Errorf("%w: %q", ErrTruncatedRewrite, debug.Truncate(resp.Text, 120))
		}
		slog.Warn("rewriter output missing sentinel", "output", debug.Truncate(resp.Text, 120))
	}
	if !res.Profane {
		res.Text = r.acronyms.Correct(res.Text)
	}
	return res, nil
}

// Prompt renders the system prompt for query and the rendered history.
func (r *Rewriter) Prompt(query, oldChat string) (string, error) {
	data := struct {
		Query           string
		OldChat         string
		Sentinel        string
		ProfaneSentinel string
		Acronyms        []string
		LowInfoTokens   []string
		Scenarios       []Scenario
		Tasks           []Task
	}{
		Query:           query,
		OldChat:         oldChat,
		Sentinel:        Sentinel,
		ProfaneSentinel: ProfaneSentinel,
		Acronyms:        r.cfg.Acronyms,
		LowInfoTokens:   r.cfg.LowInfoTokens,
		Scenarios:       Scenarios(),
		Tasks:           Tasks(),
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering rewriter prompt: %w", err)
	}
	return buf.String(), nil
}

func (r *Rewriter) isLowInformation(query string) bool {
	fields := strings.Fields(query)
	if len(fields) != 1 {
		return false
	}
	tok := strings.ToLower(strings.Trim(fields[0], ".,!?;:'\""))
	return r.lowInfo[tok]
}

// RewriteContext renders the last n user turns as "<user>: content"
// entries joined by spaces. Assistant turns are skipped.
func RewriteContext(history []api.Turn, n int) string {
	var users []string
	for _, t := range history {
		if t.Role == api.RoleUser {
			users = append(users, "<user>: "+t.Content)
		}
	}
	if n > 0 && len(users) > n {
		users = users[len(users)-n:]
	}
	return strings.Join(users, " ")
}

// Parse interprets raw model output. The output may be JSON-quoted; text
// after the first sentinel is discarded.
func Parse(output string) (Result, error) {
	s := strings.TrimSpace(output)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err == nil {
			s = strings.TrimSpace(unquoted)
		}
	}

	var res Result
	if before, _, found := strings.Cut(s, Sentinel); found {
		s = before
		res.Terminated = true
	}
	res.Text = strings.TrimSpace(s)

	if res.Text == "" {
		return Result{}, ErrEmptyRewrite
	}
	if strings.EqualFold(strings.TrimRight(res.Text, ".!"), ProfaneSentinel) {
		res.Profane = true
	}
	return res, nil
}
