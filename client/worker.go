package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tetherhttp/tether/engine"
)

// defaultQueueDepth bounds the dispatch channel. Submission blocks
// when the queue is full, so a runaway producer cannot grow memory
// without limit.
const defaultQueueDepth = 256

// pendingRequest travels over the dispatch channel from a caller to
// the worker goroutine. Its presence in the channel means "submitted,
// not yet dispatched".
type pendingRequest struct {
	req  *http.Request
	slot chan execResult
	ctx  context.Context
}

// execResult is the outcome the worker writes into a request's slot.
type execResult struct {
	resp *http.Response
	err  error
}

// workerState is the reference-counted ownership of the dispatch
// channel and the worker goroutine. Every live Client clone and every
// outstanding Response holds one reference; the final release closes
// the channel and joins the worker.
type workerState struct {
	logger *slog.Logger

	tx     chan pendingRequest
	exited chan struct{} // closed when the worker goroutine returns

	mu     sync.Mutex
	refs   int
	closed bool
}

// launchWorker spawns the worker goroutine, constructs the execution
// engine inside it, and waits for the start-up handshake. Construction
// failures surface here as ordinary errors with no goroutine left
// behind: the worker reports over the handshake channel and exits
// before its dispatch loop ever starts.
//
// The handshake wait is deliberately unbounded; start-up is not
// subject to the client's request timeout.
func launchWorker(cfg engine.Config, queueDepth int, logger *slog.Logger) (*workerState, error) {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}

	ws := &workerState{
		logger: logger,
		tx:     make(chan pendingRequest, queueDepth),
		exited: make(chan struct{}),
		refs:   1,
	}

	startup := make(chan error, 1)
	go func() {
		defer close(ws.exited)

		eng, err := engine.Build(cfg)
		if err != nil {
			startup <- err
			return
		}
		startup <- nil

		ws.logger.Debug("worker started")
		ws.dispatch(eng)
		ws.logger.Debug("worker exiting")
	}()

	if err := <-startup; err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	return ws, nil
}

// dispatch is the worker goroutine's event loop and the sole consumer
// of the dispatch channel. Each received request is driven by its own
// task goroutine so concurrency is per request, never serialized. The
// loop exits when the channel is closed and drained, then waits for
// in-flight tasks before tearing the engine down.
func (ws *workerState) dispatch(eng *engine.Engine) {
	defer eng.Close()

	var tasks sync.WaitGroup
	for p := range ws.tx {
		tasks.Add(1)
		go func(p pendingRequest) {
			defer tasks.Done()
			serve(eng, p)
		}(p)
	}
	tasks.Wait()
}

// serve drives one request to completion. The engine observes the
// task context at its I/O suspension points, so a caller that stopped
// waiting aborts the request without any explicit cancel message. An
// abandoned task delivers nothing: it closes the slot (and any raced
// response body) instead of writing a result.
func serve(eng *engine.Engine, p pendingRequest) {
	resp, err := eng.Do(p.req)

	select {
	case <-p.ctx.Done():
		if resp != nil {
			resp.Body.Close()
		}
		close(p.slot)
	default:
		p.slot <- execResult{resp: resp, err: err}
	}
}

// submit places a request on the dispatch channel. Submitting after
// the worker has shut down is a lifecycle violation, not an error the
// caller can act on.
//
// The send blocks when the queue is full; the worker drains it
// continuously, so the wait is bounded by dispatch latency alone.
func (ws *workerState) submit(p pendingRequest) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		panic("tether: request submitted after worker shutdown")
	}
	ws.tx <- p
}

// addRef records a new owner: a Client clone or an outstanding
// Response that must keep the worker alive.
func (ws *workerState) addRef() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		panic("tether: worker referenced after shutdown")
	}
	ws.refs++
}

// release drops one reference. The final release closes the dispatch
// channel, which is the only shutdown signal the worker receives, and
// then joins the worker goroutine. The join happens exactly once and the
// releaser does not return until the worker has fully exited.
func (ws *workerState) release() {
	ws.mu.Lock()
	ws.refs--
	last := ws.refs == 0
	if last {
		ws.closed = true
		close(ws.tx)
		ws.logger.Debug("worker shutdown signaled")
	}
	ws.mu.Unlock()

	if last {
		<-ws.exited
		ws.logger.Debug("worker joined")
	}
}
