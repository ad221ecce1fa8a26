package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork indicates the remote query could not be completed
	// (transport failure or non-2xx status).
	ErrNetwork = errors.New("catalog network failure")

	// ErrBadResponse indicates the remote answered but the payload was not
	// a successful query envelope.
	ErrBadResponse = errors.New("catalog returned an unsuccessful response")

	// ErrInvalidQuery indicates a search without any criteria.
	ErrInvalidQuery = errors.New("catalog query needs at least one search criteria")
)

// QueryError carries the failing target and HTTP status.
type QueryError struct {
	Target     string
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("catalog query %s (status=%d): %v", e.Target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog query %s: %v", e.Target, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// permanentError stops RetryWithBackoff immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}
