package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned by a Sender when the provider could not be
// reached or answered with a non-2xx status.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError means the transport succeeded but the payload itself
// reports an error or cannot be read. It fails every request the
// descriptor covers.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// failureOf maps a descriptor-level error onto the status and message
// handed to every covered request.
func failureOf(err error) (int, string) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return http.StatusBadGateway, pe.Message
	}
	var te *TransportError
	if errors.As(err, &te) {
		code := te.StatusCode
		if code == 0 {
			code = http.StatusBadGateway
		}
		return code, te.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "provider request timed out"
	}
	return http.StatusBadGateway, err.Error()
}
