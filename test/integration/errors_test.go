package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestInvocationRequiresAPIKey(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/invocations", map[string]any{"inputs": "hi"}, "")
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", resp.StatusCode, body)
	}
}

func TestInvocationWrongAPIKey(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/invocations", map[string]any{"inputs": "hi"}, "sk-wrong")
	readBody(t, resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestInvocationValidation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantInBody  string
	}{
		{"missing inputs", "application/json", `{"parameters":{}}`, http.StatusBadRequest, "inputs"},
		{"empty inputs", "application/json", `{"inputs":""}`, http.StatusBadRequest, "inputs"},
		{"wrong history type", "application/json", `{"inputs":"hi","parameters":{"Conversation_History":"yes"}}`, http.StatusBadRequest, "Conversation_History"},
		{"malformed json", "application/json", `{"inputs":`, http.StatusBadRequest, ""},
		{"wrong content type", "text/plain", `{"inputs":"hi"}`, http.StatusUnsupportedMediaType, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRaw(t, testEnv.BaseURL()+"/invocations", tt.contentType, []byte(tt.body), testAPIKey)
			body := readBody(t, resp)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantInBody != "" && !strings.Contains(body, tt.wantInBody) {
				t.Errorf("body %q does not mention %q", body, tt.wantInBody)
			}
		})
	}
}

func TestInvocationBodyTooLarge(t *testing.T) {
	huge := `{"inputs":"` + strings.Repeat("a", 1<<20) + `"}`
	resp := postRaw(t, testEnv.BaseURL()+"/invocations", "application/json", []byte(huge), testAPIKey)
	readBody(t, resp)

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, testEnv.BaseURL()+"/invocations", strings.NewReader(`{"inputs":"What is the PTO policy"}`))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Request-ID", "trace-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	readBody(t, resp)

	if got := resp.Header.Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}
