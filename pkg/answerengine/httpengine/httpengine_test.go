package httpengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/knikam3027/jnj/pkg/answerengine"
)

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Question == "" || req.MaxSteps == 0 {
			t.Errorf("unexpected request %+v", req)
		}
		if got := r.Header.Get("X-Api-Key"); got != "engine-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
}

func newEngine(t *testing.T, url string) *Engine {
	t.Helper()
	e, err := New(Config{URL: url, Headers: map[string]string{"X-Api-Key": "engine-key"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSSEStepsKeepLast(t *testing.T) {
	srv := sseServer(t,
		`: keep-alive`,
		`data: {"content":"looking at tables"}`,
		`data: not json`,
		`data: {"content":"Maternity leave in PH is 105 days."}`,
		`data: [DONE]`,
		`data: {"content":"after done"}`,
	)
	defer srv.Close()

	a := answerengine.New(newEngine(t, srv.URL), answerengine.Config{Timeout: time.Second, MaxSteps: 5})
	got, err := a.Answer(context.Background(), "What is the Maternity Leave policy for PH")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "Maternity leave in PH is 105 days." {
		t.Errorf("Answer = %q", got)
	}
}

func TestSSEErrorEvent(t *testing.T) {
	srv := sseServer(t,
		`data: {"content":"step"}`,
		`data: {"error":"database is locked"}`,
	)
	defer srv.Close()

	a := answerengine.New(newEngine(t, srv.URL), answerengine.Config{Timeout: time.Second})
	_, err := a.Answer(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Errorf("expected engine error, got %v", err)
	}
}

func TestJSONAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"There is no information available."}`))
	}))
	defer srv.Close()

	a := answerengine.New(newEngine(t, srv.URL), answerengine.Config{Timeout: time.Second})
	got, err := a.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "There is no information available." {
		t.Errorf("Answer = %q", got)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := answerengine.New(newEngine(t, srv.URL), answerengine.Config{Timeout: time.Second})
	_, err := a.Answer(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("expected HTTP 503 error, got %v", err)
	}
}

func TestSlowEngineTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := answerengine.New(newEngine(t, srv.URL), answerengine.Config{Timeout: 50 * time.Millisecond})
	_, err := a.Answer(context.Background(), "q")
	if !errors.Is(err, answerengine.ErrAnswerEngineTimeout) {
		t.Errorf("expected ErrAnswerEngineTimeout, got %v", err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without URL")
	}
}
