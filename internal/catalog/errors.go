package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates the client was constructed without a usable base URL.
	ErrInvalidConfig = errors.New("catalog: invalid client config")
	// ErrUnexpectedStatus indicates the catalog answered with a non-success status.
	ErrUnexpectedStatus = errors.New("catalog: unexpected status")
	// ErrMalformedPage indicates a page body that could not be decoded or validated.
	ErrMalformedPage = errors.New("catalog: malformed page")
	// ErrTooManyPages indicates pagination did not terminate within the configured cap.
	ErrTooManyPages = errors.New("catalog: too many pages")
)

// FetchError aborts a FetchAll run. No partial result accompanies it.
type FetchError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog: fetch page %d: status %d: %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog: fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// attemptError carries whether a failed page request may be retried.
type attemptError struct {
	statusCode int
	retryable  bool
	err        error
}

func (e *attemptError) Error() string {
	return e.err.Error()
}

func (e *attemptError) Unwrap() error {
	return e.err
}

func transient(statusCode int, err error) *attemptError {
	return &attemptError{statusCode: statusCode, retryable: true, err: err}
}

func permanent(statusCode int, err error) *attemptError {
	return &attemptError{statusCode: statusCode, retryable: false, err: err}
}
