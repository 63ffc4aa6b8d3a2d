package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request is a fully constructed, validated request. The URL has been
// parsed successfully by the time a Request exists; malformed URLs
// never reach the worker.
type Request struct {
	method string
	url    *url.URL
	header http.Header
	body   io.Reader
}

// NewRequest validates method and rawURL and returns a Request ready
// for [Client.Execute].
func NewRequest(method, rawURL string) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing url %q: missing scheme or host", rawURL)
	}

	return &Request{
		method: method,
		url:    u,
		header: make(http.Header),
	}, nil
}

// Method returns the request method.
func (r *Request) Method() string { return r.method }

// URL returns the parsed request URL.
func (r *Request) URL() *url.URL { return r.url }

// Header returns the request headers for inspection or mutation.
func (r *Request) Header() http.Header { return r.header }

// toHTTP converts the request into the engine's representation, bound
// to the per-request task context.
func (r *Request) toHTTP(ctx context.Context) (*http.Request, error) {
	body := r.body
	if body == nil {
		body = http.NoBody
	}

	hreq, err := http.NewRequestWithContext(ctx, r.method, r.url.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for k, vals := range r.header {
		for _, v := range vals {
			hreq.Header.Add(k, v)
		}
	}

	return hreq, nil
}

// RequestBuilder accumulates a request before sending. Construction
// errors (a malformed URL, an unencodable body) are carried in the
// builder and surface from [RequestBuilder.Send] or
// [RequestBuilder.Build] before any work is submitted to the worker.
type RequestBuilder struct {
	client *Client
	req    *Request
	err    error
}

// Header adds a header to the outgoing request.
func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	if b.err == nil {
		b.req.header.Add(key, value)
	}
	return b
}

// Headers adds every header in h to the outgoing request.
func (b *RequestBuilder) Headers(h http.Header) *RequestBuilder {
	if b.err != nil {
		return b
	}
	for k, vals := range h {
		for _, v := range vals {
			b.req.header.Add(k, v)
		}
	}
	return b
}

// Query appends query parameters to the request URL.
func (b *RequestBuilder) Query(params map[string]string) *RequestBuilder {
	if b.err != nil {
		return b
	}
	q := b.req.url.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	b.req.url.RawQuery = q.Encode()
	return b
}

// BasicAuth sets the Authorization header using HTTP basic authentication.
func (b *RequestBuilder) BasicAuth(username, password string) *RequestBuilder {
	if b.err == nil {
		b.req.header.Set("Authorization", "Basic "+basicAuth(username, password))
	}
	return b
}

// Body sets a streaming request body. The reader is consumed on the
// worker side during execution and shares the request's timeout budget.
func (b *RequestBuilder) Body(body io.Reader) *RequestBuilder {
	if b.err == nil {
		b.req.body = body
	}
	return b
}

// BodyBytes sets a fixed request body.
func (b *RequestBuilder) BodyBytes(body []byte) *RequestBuilder {
	if b.err == nil {
		b.req.body = bytes.NewReader(body)
	}
	return b
}

// JSON encodes payload as the request body and sets the Content-Type
// header to application/json.
func (b *RequestBuilder) JSON(payload any) *RequestBuilder {
	if b.err != nil {
		return b
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		b.err = fmt.Errorf("encoding request payload: %w", err)
		return b
	}

	b.req.body = &buf
	b.req.header.Set("Content-Type", "application/json")
	return b
}

// Build returns the accumulated request, or the first construction
// error encountered.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.req, nil
}

// Send executes the request through the builder's client and blocks
// until a result or the client's timeout.
func (b *RequestBuilder) Send() (*Response, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.client.Execute(req)
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
