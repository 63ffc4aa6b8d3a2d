package client

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrTimeout is wrapped by [*Error] when the bounded wait for a
	// request elapses before the engine produces a result.
	ErrTimeout = errors.New("request timed out")
	// ErrUnexpectedStatusCode is the sentinel error wrapped by [UnexpectedStatusError].
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
)

// Error attaches the originating request URL to a failure for
// diagnostics. All recoverable execution failures are returned as
// *Error values; use [errors.Is] against the sentinels to classify.
type Error struct {
	URL *url.URL
	Err error
}

func (e *Error) Error() string {
	if e.URL == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError is returned by [Response.Expect] when the HTTP
// response status code does not match the expected value.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%v: %d, body: %s", e.Err, e.StatusCode, e.Body)
}

func (e *UnexpectedStatusError) Unwrap() error {
	return e.Err
}
