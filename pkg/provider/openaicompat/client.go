package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/provider"
)

// Config holds settings for an OpenAI-compatible backend.
type Config struct {
	// Name labels metrics and logs. Defaults to "openai".
	Name string

	// BaseURL is the server URL without the /v1 suffix.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout caps a single HTTP exchange. Defaults to 120s.
	Timeout time.Duration
}

// EndpointFunc returns the completion URL for a model.
type EndpointFunc func(model string) string

// AuthorizeFunc decorates an outbound request with credentials.
type AuthorizeFunc func(*http.Request)

// Client performs completions against an OpenAI-compatible backend.
type Client struct {
	name       string
	httpClient *http.Client
	endpoint   EndpointFunc
	authorize  AuthorizeFunc

	// ModelMapper optionally renames the model before sending it.
	ModelMapper func(string) string
}

// Ensure Client implements provider.Provider at compile time.
var _ provider.Provider = (*Client)(nil)

// New creates a Client for {BaseURL}/v1/chat/completions with bearer auth.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaicompat: base URL is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	authorize := func(r *http.Request) {
		if cfg.APIKey != "" {
			r.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}
	}
	endpoint := func(string) string { return baseURL + "/v1/chat/completions" }
	return NewWithEndpoint(name, endpoint, authorize, cfg.Timeout), nil
}

// NewWithEndpoint creates a Client with custom URL and auth conventions.
func NewWithEndpoint(name string, endpoint EndpointFunc, authorize AuthorizeFunc, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "gateway " + r.Method + " " + r.URL.Path
				}),
			),
		},
		endpoint:  endpoint,
		authorize: authorize,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.name }

// Complete performs one non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	reqCopy := *req
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	body, err := json.Marshal(encodeRequest(&reqCopy))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.endpoint(reqCopy.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authorize != nil {
		c.authorize(httpReq)
	}

	debug.Log("gateway", "request", "provider", c.name, "url", url, "model", reqCopy.Model, "messages", len(reqCopy.Messages))
	debug.Raw("gateway", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	debug.Log("gateway", "response", "provider", c.name, "status", httpResp.StatusCode, "choices", len(chatResp.Choices))
	return decodeResponse(&chatResp)
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
