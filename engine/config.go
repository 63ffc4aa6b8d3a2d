package engine

import (
	"net"
	"net/http"
	"time"
)

// defaultRedirectLimit caps followed redirects when no explicit
// limit is configured.
const defaultRedirectLimit = 10

// Config holds the full pass-through configuration for the engine.
// The zero value is a usable default: system proxies, gzip on,
// redirects followed up to ten hops, referer set on redirect, no
// cookie store, default TLS verification.
type Config struct {
	UserAgent      string      // persistent User-Agent header, empty means none
	DefaultHeaders http.Header // applied to every request unless already set

	CookieJar   bool // enable an in-memory cookie store
	DisableGzip bool // disable transparent response decompression

	RedirectLimit int  `validate:"gte=0"` // max redirect hops, 0 means the default of 10
	NoRedirects   bool // return redirect responses to the caller unfollowed
	NoReferer     bool // strip the Referer header on redirect

	Proxy   string // explicit proxy URL; setting one disables system proxy lookup
	NoProxy bool   // disable proxying entirely, including system proxies

	ConnectTimeout time.Duration `validate:"gte=0"` // bound on the connect phase only, 0 means none
	MaxIdlePerHost int           `validate:"gte=0"` // idle pooled connections per host, 0 means the transport default

	HTTP2PriorKnowledge bool // speak HTTP/2 only, without protocol negotiation
	HTTP2StreamWindow   int  `validate:"gte=0"` // per-stream receive window in bytes
	HTTP2ConnWindow     int  `validate:"gte=0"` // per-connection receive window in bytes

	TCPNoDelay *bool  // nil keeps the platform default (enabled)
	LocalAddr  net.IP // local address to bind outbound sockets to

	RootCAs       [][]byte // additional PEM-encoded root certificates
	ClientCertPEM []byte   // PEM-encoded client certificate chain
	ClientKeyPEM  []byte   // PEM-encoded client private key

	InsecureSkipVerify bool // disable certificate validation entirely
	SkipHostnameVerify bool // validate the chain but not the hostname

	Throttle *ThrottleConfig // outbound token-bucket rate limit
}

// ThrottleConfig defines the throttler's
// Requests Per Second and Burst Rate.
type ThrottleConfig struct {
	RPS   int `validate:"gt=0"`
	Burst int `validate:"gt=0"`
}

// redirectLimit resolves the configured hop limit.
func (c Config) redirectLimit() int {
	if c.RedirectLimit == 0 {
		return defaultRedirectLimit
	}
	return c.RedirectLimit
}
