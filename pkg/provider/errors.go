package provider

import (
	"context"
	"errors"
	"net"

	"github.com/knikam3027/jnj/pkg/api"
)

// ErrGatewayTimeout is returned when a completion attempt exceeds its
// deadline.
var ErrGatewayTimeout = errors.New("gateway timeout")

// ErrEmptyCompletion is returned when the backend answers without any
// choice to read text from.
var ErrEmptyCompletion = errors.New("gateway returned no completion")

// IsTransient reports whether err is worth retrying: timeouts, network
// failures, rate limiting and backend server errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrGatewayTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case api.ErrorTypeServerError, api.ErrorTypeTooManyRequests:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
