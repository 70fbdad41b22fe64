// Package mcpengine reaches an answer engine exposed as an MCP tool.
// Every text block of the tool result is one step; the adapter keeps the
// last one.
package mcpengine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/knikam3027/jnj/pkg/answerengine"
	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
)

// DefaultTool is the tool called when Config.Tool is empty.
const DefaultTool = "answer"

// Engine implements answerengine.Engine on an MCP client session.
type Engine struct {
	cfg     Config
	client  *mcp.Client
	session *mcp.ClientSession
}

// Ensure Engine implements answerengine.Engine at compile time.
var _ answerengine.Engine = (*Engine)(nil)

// New creates an unconnected engine. Call Connect before Run.
func New(cfg Config) *Engine {
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.Name == "" {
		cfg.Name = "answer-engine"
	}
	return &Engine{cfg: cfg}
}

// Connect performs the MCP handshake with the configured server.
func (e *Engine) Connect(ctx context.Context) error {
	return e.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport connects over transport, or over one built from
// the configuration when transport is nil.
func (e *Engine) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	e.client = mcp.NewClient(
		&mcp.Implementation{Name: "askgs", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := e.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", e.cfg.Name, err)
		}
		transport = t
	}

	session, err := e.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", e.cfg.Name, err)
	}
	e.session = session
	return nil
}

func (e *Engine) createTransport() (mcp.Transport, error) {
	if e.cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}

	var base http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if len(e.cfg.Headers) > 0 || e.cfg.Auth.Type != "" {
		ht := &headerTransport{base: base, headers: e.cfg.Headers}
		switch e.cfg.Auth.Type {
		case "":
		case "oauth_client_credentials":
			ht.creds = newClientCredentials(e.cfg.Auth)
		default:
			return nil, fmt.Errorf("unsupported auth type %q", e.cfg.Auth.Type)
		}
		base = ht
	}
	httpClient := &http.Client{Transport: base}

	switch e.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: e.cfg.URL, HTTPClient: httpClient}, nil
	case "streamable-http", "":
		return &mcp.StreamableClientTransport{Endpoint: e.cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", e.cfg.Transport)
	}
}

// Name returns "mcp".
func (e *Engine) Name() string { return "mcp" }

// Run calls the answer tool and emits one step per text block.
func (e *Engine) Run(ctx context.Context, question string, maxSteps int) (<-chan answerengine.Step, error) {
	if e.session == nil {
		return nil, fmt.Errorf("MCP engine %q not connected", e.cfg.Name)
	}

	ch := make(chan answerengine.Step, 4)
	go func() {
		defer close(ch)

		debug.Log("answerengine", "calling MCP tool", "server", e.cfg.Name, "tool", e.cfg.Tool)
		result, err := e.session.CallTool(ctx, &mcp.CallToolParams{
			Name:      e.cfg.Tool,
			Arguments: map[string]any{"question": question, "max_steps": maxSteps},
		})
		if err != nil {
			send(ctx, ch, answerengine.Step{Err: api.WithReason("answer tool call failed", fmt.Errorf("MCP tool call: %w", err))})
			return
		}

		var texts []string
		for _, c := range result.Content {
			if tc, ok := c.(*mcp.TextContent); ok {
				texts = append(texts, tc.Text)
			}
		}
		if result.IsError {
			send(ctx, ch, answerengine.Step{Err: api.WithReason("answer tool reported an error", fmt.Errorf("MCP tool %q failed: %v", e.cfg.Tool, texts))})
			return
		}
		for _, text := range texts {
			if !send(ctx, ch, answerengine.Step{Content: text}) {
				return
			}
		}
	}()
	return ch, nil
}

// Close closes the MCP session.
func (e *Engine) Close() error {
	if e.session != nil {
		return e.session.Close()
	}
	return nil
}

func send(ctx context.Context, ch chan<- answerengine.Step, step answerengine.Step) bool {
	select {
	case ch <- step:
		return true
	case <-ctx.Done():
		return false
	}
}
