package llm

import (
	"errors"
	"fmt"
)

// Failure kinds at the model-provider boundary. Callers decide retry policy
// from these; the client itself never retries.
var (
	// ErrRateLimited reports an HTTP 429 from the provider.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrInvalidCredential reports a rejected API key (401/403).
	ErrInvalidCredential = errors.New("llm: invalid credential")
	// ErrEmptyResponse reports a well-formed reply carrying no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrTruncated reports a reply cut off by the token limit or a
	// safety filter before completion.
	ErrTruncated = errors.New("llm: response truncated")
)

// NetworkError wraps a transport-level failure reaching the provider.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("llm: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
