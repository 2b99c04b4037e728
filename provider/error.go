package provider

import "fmt"

// Error is a classified provider failure. It implements the retry package's
// RecoverableError interface so callers can honor the retryable flag without
// inspecting provider internals.
type Error struct {
	Provider   string `json:"provider"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Retryable  bool   `json:"retryable"`
	Wrapped    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) IsRecoverable() bool {
	return e.Retryable
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// retryableStatus classifies an HTTP status code. Rate limiting and server
// errors are transient; everything else in the 4xx range is a caller error.
func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}
