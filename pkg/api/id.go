package api

import "github.com/google/uuid"

// NewRequestID returns a random request identifier (UUIDv4).
func NewRequestID() string {
	return uuid.NewString()
}

// ValidRequestID reports whether id parses as a UUID.
func ValidRequestID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
