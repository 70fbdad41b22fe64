package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/debug"
	"github.com/knikam3027/jnj/pkg/observability"
	"github.com/knikam3027/jnj/pkg/transport"
)

const headerRequestID = "X-Request-ID"

// Adapter serves POST /invocations and the operational endpoints.
type Adapter struct {
	invoker transport.Invoker
	health  transport.HealthChecker // nil means always ready
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// MirrorStatusCode writes the envelope's statusCode as the HTTP status.
	// When false every envelope is sent with HTTP 200.
	MirrorStatusCode bool

	// AllowOrigin is used for CORS preflight responses. Empty means "*".
	AllowOrigin string

	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool

	// Auth wraps the mux when set. It is responsible for bypassing the
	// operational endpoints.
	Auth func(http.Handler) http.Handler
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    1 << 20, // 1 MB
		Validation:     api.DefaultValidationConfig(),
		MetricsEnabled: true,
	}
}

// NewAdapter creates an HTTP adapter for invoker. health backs GET /readyz
// and may be nil. Middleware is applied to the invoker in the given order.
func NewAdapter(invoker transport.Invoker, health transport.HealthChecker, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		invoker = transport.Chain(middlewares...)(invoker)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		invoker: invoker,
		health:  health,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /invocations", a.handleInvocation)
	a.mux.HandleFunc("OPTIONS /invocations", a.handlePreflight)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	if cfg.MetricsEnabled {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation, HTTP metrics and the optional auth wrapper.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.config.Auth != nil {
		h = a.config.Auth(h)
	}
	h = observability.MetricsMiddleware(h)
	return requestIDMiddleware(h)
}

// requestIDMiddleware takes X-Request-ID from the request or generates one,
// stores it in the context and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = api.NewRequestID()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleInvocation handles POST /invocations.
func (a *Adapter) handleInvocation(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "reading body: "+err.Error()))
		return
	}

	if apiErr := api.ValidateInvocation(raw); apiErr != nil {
		debug.Log("transport", "invocation rejected by schema", "error", apiErr.Message)
		transport.WriteAPIError(w, apiErr)
		return
	}

	var req api.QueryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if apiErr := api.ValidateQuery(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	res := a.invoker.Invoke(r.Context(), &req)
	a.writeResult(w, res)
}

// writeResult sends the envelope. Envelope headers are copied onto the
// HTTP response.
func (a *Adapter) writeResult(w http.ResponseWriter, res *api.PipelineResult) {
	if res == nil {
		transport.WriteAPIError(w, api.NewServerError("pipeline returned no result"))
		return
	}
	if res.Metadata == nil {
		res.Metadata = []any{}
	}

	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")

	status := http.StatusOK
	if a.config.MirrorStatusCode && res.StatusCode > 0 {
		status = res.StatusCode
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Warn("writing invocation result", "error", err)
	}
}

// handlePreflight answers CORS preflight requests for /invocations.
func (a *Adapter) handlePreflight(w http.ResponseWriter, r *http.Request) {
	origin := a.config.AllowOrigin
	if origin == "" {
		origin = api.DefaultAllowOrigin
	}
	w.Header().Set(api.HeaderAllowOrigin, origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
		"Content-Type", "Authorization", "X-API-Key", headerRequestID,
	}, ", "))
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "ok", "")
}

// handleReadyz reports whether the session store is reachable.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.HealthCheck(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeStatus(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	writeStatus(w, http.StatusOK, "ready", "")
}

func writeStatus(w http.ResponseWriter, code int, status, detail string) {
	body := map[string]string{"status": status}
	if detail != "" {
		body["error"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
