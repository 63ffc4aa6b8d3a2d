package client

import "time"

// defaultTimeout bounds every blocking wait unless overridden with
// WithTimeout or disabled with WithNoTimeout. It is a wall-clock bound
// on the whole exchange: connect, write, read, and subsequent body
// reads share the one budget.
const defaultTimeout = 30 * time.Second

// maxErrBodySize caps the amount of response body read when
// building an error for an unexpected status code. This prevents
// unbounded memory usage when a large response arrives with a
// wrong status.
const maxErrBodySize = 4 << 10 // 4KB

// timeout is an optional duration; disabled means wait indefinitely.
type timeout struct {
	d       time.Duration
	enabled bool
}
