package api

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed invocation.schema.json
var invocationSchema []byte

var compiledInvocationSchema = mustCompileSchema(invocationSchema)

func mustCompileSchema(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic("api: invalid embedded schema: " + err.Error())
	}
	return s
}

// ValidationConfig holds configurable limits for invocation validation.
type ValidationConfig struct {
	MaxInputLength int // in characters, 0 = unlimited
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{MaxInputLength: 10000}
}

// ValidateInvocation checks a raw POST /invocations payload against the
// invocation JSON schema. It returns an *APIError describing every schema
// violation, or nil if the payload is structurally valid.
func ValidateInvocation(raw []byte) *APIError {
	result, err := compiledInvocationSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return NewInvalidRequestError("body", "invalid JSON: "+err.Error())
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	param := ""
	for _, re := range result.Errors() {
		if param == "" {
			param = re.Field()
		}
		msgs = append(msgs, re.String())
	}
	return NewInvalidRequestError(param, strings.Join(msgs, "; "))
}

// ValidateQuery checks a decoded QueryRequest against semantic limits that
// the schema cannot express.
func ValidateQuery(req *QueryRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Inputs) == "" {
		return NewInvalidRequestError("inputs", "inputs must not be blank")
	}
	if cfg.MaxInputLength > 0 && utf8.RuneCountInString(req.Inputs) > cfg.MaxInputLength {
		return NewInvalidRequestError("inputs",
			fmt.Sprintf("inputs exceeds maximum length of %d characters", cfg.MaxInputLength))
	}
	for i, r := range req.Parameters.Role {
		if strings.TrimSpace(r) == "" {
			return NewInvalidRequestError(fmt.Sprintf("parameters.role[%d]", i), "role entries must not be blank")
		}
	}
	return nil
}
