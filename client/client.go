// Package client implements a synchronous HTTP client whose network
// I/O runs on a single dedicated worker goroutine.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Client is a synchronous HTTP client. Every request submitted through
// it is executed by a shared worker goroutine hosting the execution
// engine; the calling goroutine blocks until a result arrives or the
// client's timeout elapses.
//
// Clones share the worker. Close every clone (and every outstanding
// [Response]) to shut the worker down; the last release joins the
// worker goroutine before returning.
type Client struct {
	ws      *workerState
	timeout timeout
	logger  *slog.Logger
	tracer  trace.Tracer

	closeOnce sync.Once
}

// New constructs a Client with default configuration.
//
// New panics if the engine cannot be built. Use [Build] to handle the
// failure as an error instead.
func New() *Client {
	c, err := Build()
	if err != nil {
		panic(fmt.Sprintf("client.New: %v", err))
	}
	return c
}

// Build constructs a Client from the given options, spawning its
// worker goroutine and building the execution engine inside it. A
// configuration failure is returned here, after the worker has already
// exited; no goroutine is left behind.
func Build(optFns ...Option) (*Client, error) {
	opts := options{
		timeout: timeout{d: defaultTimeout, enabled: true},
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	ws, err := launchWorker(opts.cfg, opts.queueDepth, opts.logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		ws:      ws,
		timeout: opts.timeout,
		logger:  opts.logger,
		tracer:  opts.tracer,
	}, nil
}

// Clone returns a new handle to the same worker goroutine. No new
// worker is spawned; the clone holds its own reference and must be
// closed independently.
func (c *Client) Clone() *Client {
	c.ws.addRef()
	return &Client{
		ws:      c.ws,
		timeout: c.timeout,
		logger:  c.logger,
		tracer:  c.tracer,
	}
}

// Close releases this handle's worker reference. When the last
// reference anywhere (clone or outstanding Response) is released, the
// dispatch channel is closed and the worker goroutine is joined before
// Close returns. Close is idempotent; requests already in flight keep
// being served until the channel drains.
func (c *Client) Close() {
	c.closeOnce.Do(c.ws.release)
}

// Get starts building a GET request to url.
func (c *Client) Get(url string) *RequestBuilder {
	return c.Request(http.MethodGet, url)
}

// Post starts building a POST request to url.
func (c *Client) Post(url string) *RequestBuilder {
	return c.Request(http.MethodPost, url)
}

// Put starts building a PUT request to url.
func (c *Client) Put(url string) *RequestBuilder {
	return c.Request(http.MethodPut, url)
}

// Patch starts building a PATCH request to url.
func (c *Client) Patch(url string) *RequestBuilder {
	return c.Request(http.MethodPatch, url)
}

// Delete starts building a DELETE request to url.
func (c *Client) Delete(url string) *RequestBuilder {
	return c.Request(http.MethodDelete, url)
}

// Head starts building a HEAD request to url.
func (c *Client) Head(url string) *RequestBuilder {
	return c.Request(http.MethodHead, url)
}

// Request starts building a request with the given method and URL. A
// malformed URL is captured in the builder and returned from Send,
// before anything reaches the worker.
func (c *Client) Request(method, rawURL string) *RequestBuilder {
	req, err := NewRequest(method, rawURL)
	return &RequestBuilder{client: c, req: req, err: err}
}

// Execute submits req to the worker goroutine and blocks until the
// engine produces a result, the client's timeout elapses, or the
// worker vanishes.
//
// A timeout abandons the engine-side task: its context is cancelled
// and the engine releases the request's resources at its next I/O
// boundary; no result is delivered. A vanished worker is an invariant
// violation and panics rather than returning an error.
func (c *Client) Execute(req *Request) (*Response, error) {
	if req == nil || req.url == nil {
		return nil, errors.New("request must not be nil")
	}

	ctx, span := c.tracer.Start(context.Background(), "client.execute",
		trace.WithAttributes(
			attribute.String("request.id", uuid.NewString()),
			attribute.String("http.method", req.method),
			attribute.String("http.url", req.url.String()),
		))
	defer span.End()

	// The task context descends from the span context so the span
	// parents anything instrumented downstream of the engine.
	taskCtx, cancel := context.WithCancel(ctx)

	hreq, err := req.toHTTP(taskCtx)
	if err != nil {
		cancel()
		span.RecordError(err)
		return nil, err
	}

	var (
		deadline time.Time
		timeoutC <-chan time.Time
	)
	if c.timeout.enabled {
		deadline = time.Now().Add(c.timeout.d)
		timer := time.NewTimer(c.timeout.d)
		defer timer.Stop()
		timeoutC = timer.C
	}

	slot := make(chan execResult, 1)
	c.ws.submit(pendingRequest{req: hreq, slot: slot, ctx: taskCtx})

	select {
	case res, ok := <-slot:
		if !ok {
			// The worker only closes a slot after observing our
			// cancellation, which has not happened.
			cancel()
			panic("tether: response slot closed without a result")
		}
		if res.err != nil {
			cancel()
			execErr := &Error{URL: req.url, Err: res.err}
			span.RecordError(execErr)
			return nil, execErr
		}
		return newResponse(res.resp, req.url, c.ws, cancel, deadline, c.timeout.enabled), nil

	case <-timeoutC:
		cancel()
		go drainSlot(slot)
		execErr := &Error{URL: req.url, Err: ErrTimeout}
		span.RecordError(execErr)
		return nil, execErr

	case <-c.ws.exited:
		cancel()
		panic("tether: worker goroutine exited while a request was pending")
	}
}

// drainSlot reaps a result that raced an abandonment, closing its
// body so the engine-side connection is released. The worker writes or
// closes every slot exactly once, so this always returns.
func drainSlot(slot chan execResult) {
	if res, ok := <-slot; ok && res.resp != nil {
		res.resp.Body.Close()
	}
}
