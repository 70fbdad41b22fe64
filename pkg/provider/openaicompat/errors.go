package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/provider"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// gatewayFailure describes how one class of gateway status is surfaced.
type gatewayFailure struct {
	fallback string
	build    func(message string) *api.APIError
}

var gatewayFailures = map[int]gatewayFailure{
	http.StatusBadRequest: {
		fallback: "gateway rejected the completion request",
		build:    func(m string) *api.APIError { return api.NewInvalidRequestError("", m) },
	},
	http.StatusUnauthorized: {
		fallback: "gateway credentials rejected",
		build:    api.NewUnauthorizedError,
	},
	http.StatusForbidden: {
		fallback: "gateway credentials rejected",
		build:    api.NewUnauthorizedError,
	},
	http.StatusNotFound: {
		fallback: "gateway model or deployment not found",
		build:    api.NewNotFoundError,
	},
	http.StatusTooManyRequests: {
		fallback: "gateway rate limit exceeded",
		build:    api.NewTooManyRequestsError,
	},
}

// MapHTTPError turns a non-2xx gateway response into an APIError. The
// gateway's own message is preferred over the generic one. Server errors
// map to server_error so the resilient wrapper retries them.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	if f, ok := gatewayFailures[resp.StatusCode]; ok {
		if message == "" {
			message = f.fallback
		}
		return f.build(message)
	}

	if message == "" {
		message = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return api.NewServerError(message)
	}
	return api.NewInvalidRequestError("", message)
}

// MapNetworkError classifies a failed round trip. Deadline overruns become
// provider.ErrGatewayTimeout and caller cancellation is returned as is.
func MapNetworkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", provider.ErrGatewayTimeout, err)
	}
	return api.NewServerError("gateway unreachable: " + err.Error())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ExtractErrorMessage returns error.message from a gateway error body, or
// "" when the body is empty or not in the expected shape.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	var envelope ChatErrorResponse
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}
