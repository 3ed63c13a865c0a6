package classify

import (
	"errors"
	"fmt"

	"github.com/ykarpov/inboxflow/app/llm"
	"github.com/ykarpov/inboxflow/app/taxonomy"
)

// ValidationError reports malformed caller input. Never retried; maps to a
// 400-class response at the service boundary.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// TransientUpstreamError reports that the external classifier kept rate
// limiting or returning empty/cut-off answers through all retry attempts.
type TransientUpstreamError struct {
	Attempts int
	Last     error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("upstream classifier failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TransientUpstreamError) Unwrap() error {
	return e.Last
}

// AuthError reports a rejected credential. Fatal for a whole batch run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("classifier credential rejected: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is a normalizer schema failure.
func IsFormatError(err error) bool {
	var fe *taxonomy.FormatError
	return errors.As(err, &fe)
}

// isTransient reports whether a classifier failure is worth another attempt.
// A structurally malformed answer is not: retrying will not fix it.
func isTransient(err error) bool {
	return errors.Is(err, llm.ErrRateLimited) ||
		errors.Is(err, llm.ErrEmptyResponse) ||
		errors.Is(err, llm.ErrTruncated)
}
