// Package tether exposes the client builder.
package tether

import (
	"github.com/tetherhttp/tether/client"
)

// NewClient instantiates a new *Client with the provided options.
// All network I/O for the returned client runs on a single dedicated
// worker goroutine; callers block until their request completes or
// the configured timeout elapses.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
