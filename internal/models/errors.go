package models

import "fmt"

// TransientFetchError wraps a network or rate-limit failure that is
// worth retrying with backoff.
type TransientFetchError struct {
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// NotFoundError signals a missing commit, request or repository. Not
// retryable; the caller skips the resource and logs.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// AuthError signals a rejected credential (401/403). Fatal for the
// affected platform's run; retrying will not help.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

// CorruptStateError signals an unreadable persisted dataset. The merge
// step must fail loudly instead of silently resetting history.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// PublishError signals a failed metrics push after retries were
// exhausted. Reported, but never aborts the rest of the run.
type PublishError struct {
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("metrics push failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("metrics push failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
