package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/knikam3027/jnj/pkg/answerengine"
	"github.com/knikam3027/jnj/pkg/answerengine/httpengine"
	"github.com/knikam3027/jnj/pkg/answerengine/mcpengine"
	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/auth"
	"github.com/knikam3027/jnj/pkg/auth/apikey"
	authjwt "github.com/knikam3027/jnj/pkg/auth/jwt"
	"github.com/knikam3027/jnj/pkg/auth/noop"
	"github.com/knikam3027/jnj/pkg/classifier"
	"github.com/knikam3027/jnj/pkg/config"
	"github.com/knikam3027/jnj/pkg/engine"
	"github.com/knikam3027/jnj/pkg/guardrail"
	"github.com/knikam3027/jnj/pkg/provider"
	"github.com/knikam3027/jnj/pkg/provider/azure"
	"github.com/knikam3027/jnj/pkg/provider/openaicompat"
	"github.com/knikam3027/jnj/pkg/rewriter"
	"github.com/knikam3027/jnj/pkg/session"
	"github.com/knikam3027/jnj/pkg/session/libsql"
	"github.com/knikam3027/jnj/pkg/session/memory"
	"github.com/knikam3027/jnj/pkg/session/postgres"
	transporthttp "github.com/knikam3027/jnj/pkg/transport/http"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	engine     *engine.Engine
	store      session.Store
	classifier *classifier.Classifier
	answers    *answerengine.Adapter
	gateway    provider.Provider

	// memory is set when sessions live in process and need sweeping.
	memory *memory.Store

	limiter *auth.TokenBucketLimiter
	authMW  func(http.Handler) http.Handler
}

func build(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	gateway, err := newGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	a.gateway = gateway

	guardCfg := guardrail.Config{
		Model:        cfg.GuardrailModel(),
		Sampling:     cfg.Gateway.Sampling,
		BlockedTerms: cfg.Guardrail.BlockedTerms,
	}
	if cfg.Guardrail.PromptFile != "" {
		data, err := os.ReadFile(cfg.Guardrail.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("reading guardrail prompt: %w", err)
		}
		guardCfg.SystemPrompt = string(data)
	}
	gate, err := guardrail.New(a.gateway, guardCfg)
	if err != nil {
		return nil, fmt.Errorf("creating guardrail: %w", err)
	}

	rw, err := rewriter.New(a.gateway, rewriter.Config{
		Model:              cfg.RewriterModel(),
		Sampling:           cfg.Gateway.Sampling,
		HistoryTurns:       cfg.Rewriter.HistoryTurns,
		Acronyms:           cfg.Rewriter.Acronyms,
		AcronymMaxDistance: cfg.Rewriter.AcronymMaxDistance,
		KeepWords:          cfg.Rewriter.KeepWords,
		LowInfoTokens:      cfg.Rewriter.LowInfoTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rewriter: %w", err)
	}

	answers, err := newAnswerEngine(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating answer engine: %w", err)
	}
	a.answers = answerengine.New(answers, answerengine.Config{
		Timeout:  cfg.AnswerEngine.Timeout,
		MaxSteps: cfg.AnswerEngine.MaxSteps,
	})

	table := classifier.DefaultTable()
	if cfg.Classifier.PhraseTable != "" {
		if table, err = classifier.LoadTable(cfg.Classifier.PhraseTable); err != nil {
			return nil, err
		}
	}
	a.classifier = classifier.New(table)

	store, err := a.newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.store = store

	a.engine, err = engine.New(engine.Deps{
		Store:      a.store,
		Gate:       gate,
		Rewriter:   rw,
		Answerer:   a.answers,
		Classifier: a.classifier,
	}, engine.Config{
		MaxTurns:    cfg.History.MaxTurns,
		AllowOrigin: cfg.Server.AllowOrigin,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	if err := a.newAuth(cfg); err != nil {
		return nil, fmt.Errorf("creating auth: %w", err)
	}
	return a, nil
}

// newGateway builds the language model client wrapped with retries.
func newGateway(cfg *config.Config) (provider.Provider, error) {
	var (
		p   provider.Provider
		err error
	)
	switch cfg.Gateway.Provider {
	case "azure":
		p, err = azure.New(azure.Config{
			Endpoint:   cfg.Gateway.Azure.Endpoint,
			Deployment: cfg.Gateway.Azure.Deployment,
			APIKey:     cfg.Gateway.APIKey,
			APIVersion: cfg.Gateway.Azure.APIVersion,
			Timeout:    cfg.Gateway.Timeout,
		})
	default:
		p, err = openaicompat.New(openaicompat.Config{
			Name:    "openai",
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
		})
	}
	if err != nil {
		return nil, err
	}
	return provider.NewResilient(p, cfg.Gateway.Retry, cfg.Gateway.Timeout), nil
}

func newAnswerEngine(ctx context.Context, cfg *config.Config) (answerengine.Engine, error) {
	ae := cfg.AnswerEngine
	switch ae.Type {
	case "mcp":
		e := mcpengine.New(mcpengine.Config{
			Name:      "answers",
			Transport: ae.MCP.Transport,
			URL:       ae.URL,
			Tool:      ae.MCP.Tool,
			Headers:   ae.Headers,
			Auth: mcpengine.AuthConfig{
				Type:         ae.MCP.Auth.Type,
				TokenURL:     ae.MCP.Auth.TokenURL,
				ClientID:     ae.MCP.Auth.ClientID,
				ClientSecret: ae.MCP.Auth.ClientSecret,
				Scopes:       ae.MCP.Auth.Scopes,
			},
		})
		if err := e.Connect(ctx); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return httpengine.New(httpengine.Config{
			URL:     ae.URL,
			Headers: ae.Headers,
			Timeout: ae.Timeout,
		})
	}
}

func (a *app) newStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
	case "libsql":
		return libsql.New(ctx, libsql.Config{Path: cfg.Storage.LibSQL.Path})
	default:
		a.memory = memory.New(cfg.History.MaxSessions)
		return a.memory, nil
	}
}

func (a *app) newAuth(cfg *config.Config) error {
	var authenticators []auth.Authenticator
	switch cfg.Auth.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.Key{Key: k.Key, Subject: k.Subject, ServiceTier: k.ServiceTier})
		}
		authenticators = append(authenticators, apikey.New(keys))
	case "jwt":
		j, err := authjwt.New(authjwt.Config{
			Secret:    cfg.Auth.JWT.Secret,
			Issuer:    cfg.Auth.JWT.Issuer,
			Audience:  cfg.Auth.JWT.Audience,
			UserClaim: cfg.Auth.JWT.UserClaim,
			TierClaim: cfg.Auth.JWT.TierClaim,
		})
		if err != nil {
			return err
		}
		authenticators = append(authenticators, j)
	default:
		authenticators = append(authenticators, noop.Authenticator{})
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.RequestsPerMinute > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, t := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
		}
		a.limiter = auth.NewTokenBucketLimiter(tiers, rl.RequestsPerMinute)
		limiter = a.limiter
	}

	chain := &auth.AuthChain{Authenticators: authenticators, DefaultDecision: auth.No}
	a.authMW = auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)
	return nil
}

func (a *app) adapterConfig(cfg *config.Config) transporthttp.Config {
	return transporthttp.Config{
		MaxBodySize:      cfg.Server.MaxBodyBytes,
		Validation:       api.ValidationConfig{MaxInputLength: cfg.Server.MaxInputLength},
		MirrorStatusCode: cfg.Server.MirrorStatusCode,
		AllowOrigin:      cfg.Server.AllowOrigin,
		MetricsEnabled:   cfg.Observability.Metrics.Enabled,
		Auth:             a.authMW,
	}
}

// Close releases every component that was created.
func (a *app) Close() {
	var errs []error
	if a.answers != nil {
		errs = append(errs, a.answers.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("closing components", "error", err)
	}
}
