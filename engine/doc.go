// Package engine builds and owns the asynchronous HTTP execution engine
// used by the client's worker goroutine.
//
// The engine is constructed exactly once, inside the worker goroutine,
// from a [Config] assembled by the client's functional options:
//
//	eng, err := engine.Build(cfg)
//	...
//	resp, err := eng.Do(req)
//
// Construction is fallible: config validation, TLS root certificate
// parsing, client identity loading, and proxy URL parsing all surface
// errors from [Build]. Callers never see a half-built engine.
//
// [Engine.Do] honors cancellation of the request's context at I/O
// boundaries, which is how the client signals that a caller stopped
// waiting for a result.
package engine
