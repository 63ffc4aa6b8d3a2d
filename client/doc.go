// Package client provides a synchronous HTTP client whose network I/O
// runs on a single dedicated worker goroutine.
//
// Callers issue requests from ordinary goroutines and block until a
// result arrives; all actual execution happens on the worker, which
// hosts the execution engine and serves any number of requests
// concurrently. The client bridges the two worlds: it routes requests
// to the worker, bounds every wait with a timeout, propagates
// abandonment when a caller gives up, and tears the worker down
// deterministically when the last reference is released.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//	)
//	defer c.Close()
//
// [New] is the panicking variant for default configuration.
//
// # Making Requests
//
// Convenience methods return a request builder; Send blocks until the
// result:
//
//	resp, err := c.Get("https://api.example.com/v1/resource").Send()
//	if err != nil { ... }
//	err = resp.JSON(&result)
//
// A timeout returns an error wrapping [ErrTimeout] with the request
// URL attached; the abandoned request is cancelled on the worker side.
//
// # Lifetime
//
// [Client.Clone] shares the worker goroutine. The worker stays alive
// while any clone or any unclosed [Response] exists; releasing the
// last reference closes the dispatch queue and joins the worker before
// returning. Submitting work after shutdown is a programming error and
// panics.
package client
