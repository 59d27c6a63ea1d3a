// ABOUTME: Error taxonomy for dispatched requests
// ABOUTME: Transport failures are retriable across origins; HTTP errors are final

package dispatch

import (
	"errors"
	"fmt"
)

// ErrNoOrigins is returned when the dispatcher is constructed with an empty
// origin list.
var ErrNoOrigins = errors.New("no api origins configured")

// NetworkError is a transport-level failure: the origin could not be
// reached at all. This is the only class eligible for origin fallback.
type NetworkError struct {
	Origin string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("origin %s unreachable: %v", e.Origin, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Message is taken from the response
// envelope when present, otherwise a generic text embedding the status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
