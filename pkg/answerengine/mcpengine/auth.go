package mcpengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// clientCredentials obtains bearer tokens with the OAuth 2.0
// client_credentials grant. Tokens are refreshed once 80% of their
// lifetime has passed; a failed refresh falls back to the cached token
// while it is still valid.
type clientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refreshAt time.Time

	httpClient *http.Client
	now        func() time.Time
}

func newClientCredentials(cfg AuthConfig) *clientCredentials {
	return &clientCredentials{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       cfg.Scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid access token, fetching one when needed.
func (c *clientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.refreshAt) {
		return c.token, nil
	}

	token, expiresIn, err := c.fetch(ctx)
	if err != nil {
		if c.token != "" && now.Before(c.expiresAt) {
			return c.token, nil
		}
		return "", fmt.Errorf("acquiring OAuth token: %w", err)
	}

	lifetime := time.Duration(expiresIn) * time.Second
	c.token = token
	c.expiresAt = now.Add(lifetime)
	c.refreshAt = now.Add(lifetime * 8 / 10)
	return token, nil
}

func (c *clientCredentials) fetch(ctx context.Context) (string, int, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if len(c.scopes) > 0 {
		form.Set("scope", strings.Join(c.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}

// headerTransport adds static headers and, when configured, a bearer
// token to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
	creds   *clientCredentials
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.creds != nil {
		token, err := t.creds.Token(req.Context())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(req)
}
