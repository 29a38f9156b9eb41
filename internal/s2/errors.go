package s2

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the S2 client.
var (
	// ErrAPIError matches every *APIError.
	ErrAPIError = errors.New("S2 API error")

	// ErrRateLimited indicates the rate limit was still exceeded after retries.
	ErrRateLimited = errors.New("S2 rate limit exceeded")

	// ErrNetworkError indicates a transport failure talking to S2.
	ErrNetworkError = errors.New("network error communicating with S2")

	// ErrNotFound indicates S2 does not know the requested paper.
	ErrNotFound = errors.New("paper not found in S2")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from S2")

	// ErrClientClosed is returned by requests issued after Close.
	ErrClientClosed = errors.New("S2 client is closed")
)

// Error codes carried by APIError.
const (
	CodeRateLimited     = "rate_limited"
	CodeNetwork         = "network_error"
	CodeNotFound        = "not_found"
	CodeInvalidResponse = "invalid_response"
	CodeAPI             = "api_error"
)

// maxIDsInMessage caps how many identifiers an error message lists.
const maxIDsInMessage = 3

// APIError represents a failed request to the S2 API. IDs names the
// identifier set the failure applies to and Attempts how many calls were
// made for it.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	IDs        []string
	Attempts   int
	Err        error // Underlying transport error, if any
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "S2 API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if len(e.IDs) > 0 {
		shown := e.IDs
		if len(shown) > maxIDsInMessage {
			shown = shown[:maxIDsInMessage]
		}
		fmt.Fprintf(&b, " (%d ids: %s", len(e.IDs), strings.Join(shown, ", "))
		if len(e.IDs) > maxIDsInMessage {
			b.WriteString(", ...")
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is makes every APIError match ErrAPIError and the code-specific sentinels.
// A rate-limit failure therefore matches both ErrRateLimited and ErrAPIError.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPIError:
		return true
	case ErrRateLimited:
		return e.Code == CodeRateLimited
	case ErrNetworkError:
		return e.Code == CodeNetwork
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrInvalidResponse:
		return e.Code == CodeInvalidResponse
	}
	return false
}

// transient reports whether a retry of the same request may succeed.
func (e *APIError) transient() bool {
	return e.Code == CodeRateLimited || e.Code == CodeNetwork || e.StatusCode >= 500
}

// IsNotFound returns true if the error indicates a paper was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAPIError returns true for any failure reported by the S2 client.
func IsAPIError(err error) bool {
	return errors.Is(err, ErrAPIError)
}

// FailedIDs collects the identifiers named by every APIError in err,
// including errors combined with errors.Join.
func FailedIDs(err error) []string {
	switch e := err.(type) {
	case nil:
		return nil
	case *APIError:
		return e.IDs
	case interface{ Unwrap() []error }:
		var ids []string
		for _, inner := range e.Unwrap() {
			ids = append(ids, FailedIDs(inner)...)
		}
		return ids
	case interface{ Unwrap() error }:
		return FailedIDs(e.Unwrap())
	}
	return nil
}
