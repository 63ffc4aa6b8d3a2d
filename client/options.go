package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tetherhttp/tether/engine"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error

type options struct {
	cfg        engine.Config
	queueDepth int
	timeout    timeout
	logger     *slog.Logger
	tracer     trace.Tracer
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(o *options) error {
		o.cfg.UserAgent = header
		return nil
	}
}

// WithDefaultHeaders applies the given headers to every request that
// does not already set them.
func WithDefaultHeaders(headers http.Header) Option {
	return func(o *options) error {
		if len(headers) == 0 {
			return errors.New("default headers must not be empty")
		}
		o.cfg.DefaultHeaders = headers
		return nil
	}
}

// WithCookieJar enables an in-memory cookie store. Cookies received in
// responses are preserved and included in subsequent requests. By
// default no cookie store is used.
func WithCookieJar() Option {
	return func(o *options) error {
		o.cfg.CookieJar = true
		return nil
	}
}

// WithoutGzip disables transparent response body decompression.
func WithoutGzip() Option {
	return func(o *options) error {
		o.cfg.DisableGzip = true
		return nil
	}
}

// WithRedirectLimit sets the maximum number of redirect hops followed.
// The default is 10.
func WithRedirectLimit(limit int) Option {
	return func(o *options) error {
		if limit <= 0 {
			return errors.New("redirect limit must be positive")
		}
		o.cfg.RedirectLimit = limit
		return nil
	}
}

// WithoutRedirects prevents the client from following HTTP redirects;
// redirect responses are returned to the caller as-is.
func WithoutRedirects() Option {
	return func(o *options) error {
		o.cfg.NoRedirects = true
		return nil
	}
}

// WithoutReferer disables the automatic Referer header on redirects.
func WithoutReferer() Option {
	return func(o *options) error {
		o.cfg.NoReferer = true
		return nil
	}
}

// WithProxy routes all requests through the proxy at rawURL, disabling
// the automatic use of the system proxy configuration. A client holds
// at most one explicit proxy; when the option is given more than once,
// the last one wins.
func WithProxy(rawURL string) Option {
	return func(o *options) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parsing proxy url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy url %q: missing scheme or host", rawURL)
		}
		o.cfg.Proxy = rawURL
		return nil
	}
}

// WithoutProxy disables proxying entirely, including the system
// proxy configuration and any proxy set earlier with [WithProxy].
func WithoutProxy() Option {
	return func(o *options) error {
		o.cfg.NoProxy = true
		o.cfg.Proxy = ""
		return nil
	}
}

// WithTimeout bounds every blocking wait: connect, write, read, and
// subsequent body reads share the one wall-clock budget. The default
// is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		o.timeout = timeout{d: d, enabled: true}
		return nil
	}
}

// WithNoTimeout disables the wait bound; callers block until the
// engine produces a result.
func WithNoTimeout() Option {
	return func(o *options) error {
		o.timeout = timeout{}
		return nil
	}
}

// WithConnectTimeout bounds only the connect phase of each request.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		o.cfg.ConnectTimeout = d
		return nil
	}
}

// WithMaxIdleConnsPerHost caps idle pooled connections per host.
func WithMaxIdleConnsPerHost(max int) Option {
	return func(o *options) error {
		if max < 0 {
			return errors.New("max idle conns must not be negative")
		}
		o.cfg.MaxIdlePerHost = max
		return nil
	}
}

// WithHTTP2PriorKnowledge speaks HTTP/2 only, without protocol
// negotiation, including over unencrypted connections.
func WithHTTP2PriorKnowledge() Option {
	return func(o *options) error {
		o.cfg.HTTP2PriorKnowledge = true
		return nil
	}
}

// WithHTTP2StreamWindow sets the per-stream receive window in bytes
// for HTTP/2 flow control.
func WithHTTP2StreamWindow(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return errors.New("stream window must be positive")
		}
		o.cfg.HTTP2StreamWindow = size
		return nil
	}
}

// WithHTTP2ConnWindow sets the per-connection receive window in bytes
// for HTTP/2 flow control.
func WithHTTP2ConnWindow(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return errors.New("connection window must be positive")
		}
		o.cfg.HTTP2ConnWindow = size
		return nil
	}
}

// WithTCPNoDelay controls TCP_NODELAY on outbound sockets. The
// platform default leaves it enabled.
func WithTCPNoDelay(enable bool) Option {
	return func(o *options) error {
		o.cfg.TCPNoDelay = &enable
		return nil
	}
}

// WithLocalAddress binds outbound sockets to the given local IP.
func WithLocalAddress(ip net.IP) Option {
	return func(o *options) error {
		if ip == nil {
			return errors.New("local address must not be nil")
		}
		o.cfg.LocalAddr = ip
		return nil
	}
}

// WithRootCertificate adds a PEM-encoded root certificate to the
// trusted store. The existing system store is kept. Malformed PEM data
// surfaces as a build error from [Build].
func WithRootCertificate(pemData []byte) Option {
	return func(o *options) error {
		if len(pemData) == 0 {
			return errors.New("root certificate must not be empty")
		}
		o.cfg.RootCAs = append(o.cfg.RootCAs, pemData)
		return nil
	}
}

// WithIdentity sets the PEM-encoded client certificate and key used
// for client certificate authentication.
func WithIdentity(certPEM, keyPEM []byte) Option {
	return func(o *options) error {
		if len(certPEM) == 0 || len(keyPEM) == 0 {
			return errors.New("identity cert and key must not be empty")
		}
		o.cfg.ClientCertPEM = certPEM
		o.cfg.ClientKeyPEM = keyPEM
		return nil
	}
}

// WithInsecureSkipCertVerify disables certificate validation entirely.
// Any certificate for any site will be trusted; use only as a last resort.
func WithInsecureSkipCertVerify() Option {
	return func(o *options) error {
		o.cfg.InsecureSkipVerify = true
		return nil
	}
}

// WithInsecureSkipHostnameVerify validates the certificate chain but
// not the hostname. A valid certificate for any site will be trusted
// for any other.
func WithInsecureSkipHostnameVerify() Option {
	return func(o *options) error {
		o.cfg.SkipHostnameVerify = true
		return nil
	}
}

// WithQueueDepth sets the capacity of the dispatch queue between
// callers and the worker goroutine. Submission blocks when the queue
// is full. The default is 256.
func WithQueueDepth(depth int) Option {
	return func(o *options) error {
		if depth <= 0 {
			return errors.New("queue depth must be positive")
		}
		o.queueDepth = depth
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting of outbound requests
// with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] must be greater than zero", rps, burst)
		}
		o.cfg.Throttle = &engine.ThrottleConfig{RPS: rps, Burst: burst}
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to record one span per executed
// request. A no-op tracer is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}
