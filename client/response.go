package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Response wraps the engine's response together with the request's
// remaining timeout budget and a reference that keeps the worker
// goroutine alive while the body is in use, even after every Client
// handle has been closed.
//
// Response is an io.ReadCloser over the body. Close it when done; the
// consuming helpers ([Response.JSON], [Response.Bytes],
// [Response.String]) close it themselves.
type Response struct {
	resp   *http.Response
	url    *url.URL
	ws     *workerState
	cancel context.CancelFunc

	timer    *time.Timer // nil when the wait is unbounded
	timedOut atomic.Bool

	once     sync.Once
	closeErr error
}

// newResponse takes a worker reference on behalf of the response and
// arms the remaining timeout budget against body reads.
func newResponse(resp *http.Response, u *url.URL, ws *workerState, cancel context.CancelFunc, deadline time.Time, bounded bool) *Response {
	ws.addRef()

	r := &Response{
		resp:   resp,
		url:    u,
		ws:     ws,
		cancel: cancel,
	}
	if bounded {
		r.timer = time.AfterFunc(time.Until(deadline), func() {
			r.timedOut.Store(true)
			cancel()
		})
	}
	return r
}

// StatusCode returns the response status code.
func (r *Response) StatusCode() int { return r.resp.StatusCode }

// Status returns the response status line, e.g. "200 OK".
func (r *Response) Status() string { return r.resp.Status }

// Header returns the response headers.
func (r *Response) Header() http.Header { return r.resp.Header }

// ContentLength returns the response content length, or -1 if unknown.
func (r *Response) ContentLength() int64 { return r.resp.ContentLength }

// Cookies parses and returns the Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie { return r.resp.Cookies() }

// URL returns the originating request URL.
func (r *Response) URL() *url.URL { return r.url }

// Read streams the response body, bounded by the request's original
// timeout budget. A read aborted by the expired budget reports
// [ErrTimeout] with the request URL attached.
func (r *Response) Read(p []byte) (int, error) {
	n, err := r.resp.Body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.timedOut.Load() {
		return n, &Error{URL: r.url, Err: ErrTimeout}
	}
	return n, err
}

// Close releases the response: it stops the body deadline, cancels the
// request's task context, closes the body, and drops the response's
// worker reference. If this was the last reference anywhere, the
// worker goroutine is shut down and joined before Close returns.
// Close is idempotent.
func (r *Response) Close() error {
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		r.cancel()
		r.closeErr = r.resp.Body.Close()
		r.ws.release()
	})
	return r.closeErr
}

// JSON decodes the response body into dest and closes the response.
func (r *Response) JSON(dest any) error {
	defer r.Close()

	if err := json.NewDecoder(r).Decode(dest); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// Bytes reads the full response body and closes the response.
func (r *Response) Bytes() ([]byte, error) {
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return b, nil
}

// String reads the full response body as a string and closes the response.
func (r *Response) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// Expect validates the response status code. On mismatch it reads a
// capped portion of the body for diagnostics, closes the response, and
// returns an [*UnexpectedStatusError]. On match the body remains open
// for the caller to consume.
func (r *Response) Expect(statusCode int) error {
	if r.resp.StatusCode == statusCode {
		return nil
	}

	b, err := io.ReadAll(io.LimitReader(r, maxErrBodySize))
	if err != nil {
		b = []byte("unable to read body")
	}
	r.Close()

	return &UnexpectedStatusError{
		StatusCode: r.resp.StatusCode,
		Body:       string(b),
		Err:        ErrUnexpectedStatusCode,
	}
}
