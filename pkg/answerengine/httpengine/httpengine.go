// Package httpengine reaches an answer engine over HTTP. The engine
// replies either with server-sent events, one step per data line, or with
// a single JSON answer.
package httpengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/knikam3027/jnj/pkg/answerengine"
	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
)

const (
	// maxLineSize bounds one SSE data line.
	maxLineSize = 1 << 20

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 1 << 10
)

// Config holds HTTP engine settings.
type Config struct {
	// URL receives POST {"question", "max_steps"}.
	URL string

	// Headers are added to every request (API keys and similar).
	Headers map[string]string

	// Timeout caps the HTTP exchange. The adapter's own timeout still
	// applies; zero leaves it to the adapter.
	Timeout time.Duration
}

// Request is the body sent to the engine.
type Request struct {
	Question string `json:"question"`
	MaxSteps int    `json:"max_steps"`
}

// StepEvent is one SSE data payload.
type StepEvent struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// AnswerResponse is the single-shot JSON reply.
type AnswerResponse struct {
	Answer string `json:"answer"`
}

// Engine implements answerengine.Engine over HTTP.
type Engine struct {
	cfg    Config
	client *http.Client
}

// Ensure Engine implements answerengine.Engine at compile time.
var _ answerengine.Engine = (*Engine)(nil)

// New creates an HTTP engine.
func New(cfg Config) (*Engine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("httpengine: URL is required")
	}
	return &Engine{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Name returns "http".
func (e *Engine) Name() string { return "http" }

// Run posts the question and streams the engine's steps.
func (e *Engine) Run(ctx context.Context, question string, maxSteps int) (<-chan answerengine.Step, error) {
	body, err := json.Marshal(Request{Question: question, MaxSteps: maxSteps})
	if err != nil {
		return nil, fmt.Errorf("marshaling engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	debug.Log("answerengine", "request", "url", e.cfg.URL, "max_steps", maxSteps)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, api.WithReason("answer engine unreachable", fmt.Errorf("answer engine request failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, api.WithReason(fmt.Sprintf("upstream HTTP %d", resp.StatusCode),
			fmt.Errorf("answer engine returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	ch := make(chan answerengine.Step, 4)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	go func() {
		defer close(ch)
		defer resp.Body.Close()
		if mediaType == "text/event-stream" {
			parseSSE(ctx, resp.Body, ch)
			return
		}
		parseJSON(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// Close releases idle connections.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// parseSSE reads "data: " lines until "[DONE]" or EOF. Malformed
// payloads are logged and skipped.
func parseSSE(ctx context.Context, body io.Reader, ch chan<- answerengine.Step) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		payload, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			return
		}

		var ev StepEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed answer engine event",
				"error", err.Error(),
				"data", debug.Truncate(payload, 200),
			)
			continue
		}

		step := answerengine.Step{Content: ev.Content}
		if ev.Error != "" {
			step = answerengine.Step{Err: api.WithReason("answer engine reported an error", errors.New(ev.Error))}
		}
		if !send(ctx, ch, step) || step.Err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, ch, answerengine.Step{Err: api.WithReason("answer engine stream interrupted", fmt.Errorf("answer engine stream read error: %w", err))})
	}
}

func parseJSON(ctx context.Context, body io.Reader, ch chan<- answerengine.Step) {
	var ar AnswerResponse
	if err := json.NewDecoder(body).Decode(&ar); err != nil {
		send(ctx, ch, answerengine.Step{Err: api.WithReason("malformed answer engine response", fmt.Errorf("parsing answer engine response: %w", err))})
		return
	}
	send(ctx, ch, answerengine.Step{Content: ar.Answer})
}

func send(ctx context.Context, ch chan<- answerengine.Step, step answerengine.Step) bool {
	select {
	case ch <- step:
		return true
	case <-ctx.Done():
		return false
	}
}
