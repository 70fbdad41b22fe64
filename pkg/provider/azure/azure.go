// Package azure adapts an Azure OpenAI deployment to provider.Provider.
// Azure routes by deployment name in the URL path and authenticates with
// an api-key header instead of a bearer token.
package azure

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/knikam3027/jnj/pkg/provider"
	"github.com/knikam3027/jnj/pkg/provider/openaicompat"
)

// DefaultAPIVersion is used when Config.APIVersion is empty.
const DefaultAPIVersion = "2024-02-01"

// Config holds Azure OpenAI settings.
type Config struct {
	// Endpoint is the resource URL, e.g. https://myres.openai.azure.com.
	Endpoint string

	// Deployment is the deployment name. When empty the request model is
	// used as the deployment.
	Deployment string

	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// New creates an Azure-backed completion client.
func New(cfg Config) (provider.Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure: api key is required")
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	return openaicompat.NewWithEndpoint("azure",
		func(model string) string {
			deployment := cfg.Deployment
			if deployment == "" {
				deployment = model
			}
			return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
				endpoint, url.PathEscape(deployment), url.QueryEscape(version))
		},
		func(r *http.Request) {
			r.Header.Set("api-key", cfg.APIKey)
		},
		cfg.Timeout,
	), nil
}
