package api

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one role-tagged message in a conversation transcript.
// Turns are values and are never mutated after creation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a Turn authored by the caller.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a Turn authored by the service.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// QueryRequest is the body of POST /invocations.
type QueryRequest struct {
	Inputs     string     `json:"inputs"`
	Parameters Parameters `json:"parameters"`
}

// Parameters carries caller identity and per-request pipeline switches.
// Unknown fields are preserved in Extra.
type Parameters struct {
	UserID              string   `json:"UserID,omitempty"`
	RequestID           string   `json:"request_id,omitempty"`
	ConversationHistory *bool    `json:"Conversation_History,omitempty"`
	Role                []string `json:"role,omitempty"`

	// SessionID is an optional stable conversation token. When set it takes
	// precedence over the UserID/request_id pair for session scoping.
	SessionID string `json:"session_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// RetainHistory reports whether prior turns should be kept for this request.
// An absent Conversation_History flag means the history is retained.
func (p Parameters) RetainHistory() bool {
	if p.ConversationHistory == nil {
		return true
	}
	return *p.ConversationHistory
}

var knownParameterFields = map[string]bool{
	"UserID":               true,
	"request_id":           true,
	"Conversation_History": true,
	"role":                 true,
	"session_id":           true,
}

// UnmarshalJSON decodes the known parameter fields and keeps the rest in Extra.
// UserID and request_id are accepted as strings or numbers.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if p.UserID, err = looseString(raw["UserID"]); err != nil {
		return fmt.Errorf("UserID: %w", err)
	}
	if p.RequestID, err = looseString(raw["request_id"]); err != nil {
		return fmt.Errorf("request_id: %w", err)
	}
	if p.SessionID, err = looseString(raw["session_id"]); err != nil {
		return fmt.Errorf("session_id: %w", err)
	}
	if v, ok := raw["Conversation_History"]; ok && string(v) != "null" {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("Conversation_History: %w", err)
		}
		p.ConversationHistory = &b
	}
	if v, ok := raw["role"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &p.Role); err != nil {
			return fmt.Errorf("role: %w", err)
		}
	}

	for k, v := range raw {
		if knownParameterFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		p.Extra[k] = val
	}
	return nil
}

// MarshalJSON writes the known fields followed by Extra.
func (p Parameters) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.UserID != "" {
		out["UserID"] = p.UserID
	}
	if p.RequestID != "" {
		out["request_id"] = p.RequestID
	}
	if p.SessionID != "" {
		out["session_id"] = p.SessionID
	}
	if p.ConversationHistory != nil {
		out["Conversation_History"] = *p.ConversationHistory
	}
	if p.Role != nil {
		out["role"] = p.Role
	}
	return json.Marshal(out)
}

func looseString(v json.RawMessage) (string, error) {
	if len(v) == 0 || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("must be a string or number")
	}
	return n.String(), nil
}

// Header names and values carried on every PipelineResult.
const (
	HeaderAllowOrigin  = "Access-Control-Allow-Origin"
	DefaultAllowOrigin = "*"
)

// PipelineResult is the uniform envelope returned for every invocation,
// whether it succeeded, was refused, or failed.
type PipelineResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Metadata   []any             `json:"metadata"`
}

// NewPipelineResult builds an envelope with the default CORS header and an
// empty (non-nil) metadata list.
func NewPipelineResult(status int, body string) *PipelineResult {
	return &PipelineResult{
		StatusCode: status,
		Headers:    map[string]string{HeaderAllowOrigin: DefaultAllowOrigin},
		Body:       body,
		Metadata:   []any{},
	}
}
