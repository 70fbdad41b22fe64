// Command mock-backend serves a scripted language model gateway and answer
// engine so askgs can run locally without external services.
//
// Gateway (POST /v1/chat/completions): the safety gate gets "Unsafe" for
// queries mentioning password, hack or exploit and "Safe" otherwise. The
// rewriter gets the query back with the stop sentinel, or the profanity
// sentinel for damn and crap.
//
// Answer engine (POST /answers): streams progress steps as SSE and ends
// with a final answer. Questions containing "unknown", "confidential" or
// "blank" produce a no-context phrase, a refusal or an empty answer.
//
// MOCK_PORT selects the listen port (default 9090).
package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"
)

const (
	// Every gateway stage frames the query with this prefix and a period.
	queryPrefix   = "Follow the system instructions and respond to the query:"
	rewriterIntro = "You are a multitasking assistant"
	stopSentinel  = "<stop>"
	stepDelay     = 20 * time.Millisecond
)

var (
	unsafeWords  = []string{"password", "hack", "exploit"}
	profaneWords = []string{"damn", "crap"}
)

func main() {
	addr := ":" + cmp.Or(os.Getenv("MOCK_PORT"), "9090")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", completions)
	mux.HandleFunc("GET /v1/models", models)
	mux.HandleFunc("POST /answers", answers)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("mock backend listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		slog.Warn("mock backend shutdown", "error", err)
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func completions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"message": "malformed completion request", "type": "invalid_request_error"},
		})
		return
	}

	system, query := split(req.Messages)
	reply := judge(query)
	if strings.HasPrefix(system, rewriterIntro) {
		reply = rewrite(query)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  cmp.Or(req.Model, "mock-model"),
		"choices": []map[string]any{{
			"index":         0,
			"message":       message{Role: "assistant", Content: reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": len(query), "completion_tokens": len(reply)},
	})
}

// split returns the system prompt and the bare query of the last user
// message.
func split(msgs []message) (system, query string) {
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			query = strings.TrimSuffix(strings.TrimPrefix(m.Content, queryPrefix), ".")
		}
	}
	return system, query
}

func judge(query string) string {
	if mentions(query, unsafeWords) {
		return "Unsafe"
	}
	return "Safe"
}

func rewrite(query string) string {
	if mentions(query, profaneWords) {
		return "DO NOT USE PROFANE LANGUAGE " + stopSentinel
	}
	return query + " " + stopSentinel
}

func models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   []map[string]string{{"id": "mock-model", "object": "model", "owned_by": "askgs-mock"}},
	})
}

func answers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		MaxSteps int    `json:"max_steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed answer request", http.StatusBadRequest)
		return
	}

	steps := []string{
		"Searching the policy library",
		"Reading " + req.Question,
		finalAnswer(req.Question),
	}
	if req.MaxSteps > 0 && len(steps) > req.MaxSteps {
		steps = steps[len(steps)-req.MaxSteps:]
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for _, step := range steps {
		data, _ := json.Marshal(map[string]string{"content": step})
		fmt.Fprintf(w, "data: %s\n\n", data)
		if err := rc.Flush(); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(stepDelay):
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	rc.Flush()
}

func finalAnswer(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "unknown"):
		return "The context does not mention anything about that topic."
	case strings.Contains(q, "confidential"):
		return "I am sorry, I may not be able to answer at this time."
	case strings.Contains(q, "blank"):
		return ""
	}
	return "According to the employee handbook: " + question + " is covered in section 4."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("mock backend write failed", "error", err)
	}
}

func mentions(s string, words []string) bool {
	s = strings.ToLower(s)
	return slices.ContainsFunc(words, func(w string) bool { return strings.Contains(s, w) })
}
