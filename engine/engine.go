package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// ErrBadRootCertificate is returned by Build when a configured root
// certificate contains no parsable PEM certificate data.
var ErrBadRootCertificate = errors.New("no certificates found in PEM data")

// Engine executes HTTP requests asynchronously with respect to the
// client's callers. It wraps a fully configured *http.Client and is
// driven exclusively from the worker goroutine that built it.
type Engine struct {
	hc   *http.Client
	base *http.Transport
}

// Build constructs an Engine from cfg. It validates the configuration,
// loads TLS material, and assembles the transport stack. Any failure is
// returned before the engine exists; there is no partial construction.
func Build(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	proxy, err := proxyFunc(cfg)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:               proxy,
		DialContext:         dialContext(cfg),
		TLSClientConfig:     tlsCfg,
		MaxIdleConnsPerHost: cfg.MaxIdlePerHost,
		DisableCompression:  cfg.DisableGzip,
		ForceAttemptHTTP2:   true,
	}

	if cfg.HTTP2StreamWindow > 0 || cfg.HTTP2ConnWindow > 0 {
		transport.HTTP2 = &http.HTTP2Config{
			MaxReceiveBufferPerStream:     cfg.HTTP2StreamWindow,
			MaxReceiveBufferPerConnection: cfg.HTTP2ConnWindow,
		}
	}
	if cfg.HTTP2PriorKnowledge {
		var protocols http.Protocols
		protocols.SetHTTP2(true)
		protocols.SetUnencryptedHTTP2(true)
		transport.Protocols = &protocols
	}

	var rt http.RoundTripper = transport
	if len(cfg.DefaultHeaders) > 0 {
		rt = defaultHeaders{headers: cfg.DefaultHeaders, base: rt}
	}
	if cfg.UserAgent != "" {
		rt = userAgent{value: cfg.UserAgent, base: rt}
	}
	if cfg.Throttle != nil {
		rt = newThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst, rt)
	}

	hc := &http.Client{
		Transport:     rt,
		CheckRedirect: checkRedirect(cfg),
	}

	if cfg.CookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &Engine{hc: hc, base: transport}, nil
}

// Do executes req. The request's context is observed at I/O boundaries;
// cancelling it aborts the request and releases its resources.
func (e *Engine) Do(req *http.Request) (*http.Response, error) {
	return e.hc.Do(req)
}

// Close releases pooled connections. Called once, when the worker's
// dispatch loop has fully drained.
func (e *Engine) Close() {
	e.base.CloseIdleConnections()
}

// dialContext builds the dial function: connect timeout, local bind
// address, and the TCP_NODELAY override when one is configured.
func dialContext(cfg Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.LocalAddr != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: cfg.LocalAddr}
	}

	if cfg.TCPNoDelay == nil {
		return dialer.DialContext
	}

	noDelay := *cfg.TCPNoDelay
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(noDelay); err != nil {
				conn.Close()
				return nil, fmt.Errorf("setting TCP_NODELAY: %w", err)
			}
		}
		return conn, nil
	}
}

// proxyFunc resolves the proxy selection policy. An explicit proxy
// takes precedence and disables the system configuration; with none
// set, the proxy environment variables decide per request.
func proxyFunc(cfg Config) (func(*http.Request) (*url.URL, error), error) {
	if cfg.NoProxy {
		return nil, nil
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url %q: %w", cfg.Proxy, err)
		}
		return http.ProxyURL(proxyURL), nil
	}

	env := httpproxy.FromEnvironment().ProxyFunc()
	return func(r *http.Request) (*url.URL, error) {
		return env(r.URL)
	}, nil
}

// buildTLSConfig loads root certificates and the client identity.
// Returns nil when no TLS option is set so the transport keeps its
// default behavior.
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	needed := len(cfg.RootCAs) > 0 || len(cfg.ClientCertPEM) > 0 ||
		cfg.InsecureSkipVerify || cfg.SkipHostnameVerify
	if !needed {
		return nil, nil
	}

	tlsCfg := &tls.Config{}

	var roots *x509.CertPool
	if len(cfg.RootCAs) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		for _, pemData := range cfg.RootCAs {
			if !pool.AppendCertsFromPEM(pemData) {
				return nil, fmt.Errorf("adding root certificate: %w", ErrBadRootCertificate)
			}
		}
		roots = pool
		tlsCfg.RootCAs = pool
	}

	if len(cfg.ClientCertPEM) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCertPEM, cfg.ClientKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("loading client identity: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	switch {
	case cfg.InsecureSkipVerify:
		tlsCfg.InsecureSkipVerify = true
	case cfg.SkipHostnameVerify:
		// Chain validation without hostname matching: disable the
		// built-in verification and re-run it against the configured
		// roots with no DNSName constraint.
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyPeerCertificate = verifyChainOnly(roots)
	}

	return tlsCfg, nil
}

// verifyChainOnly validates the peer's certificate chain against roots
// (or the system pool when roots is nil) while skipping hostname
// verification.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("no peer certificates presented")
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("parsing peer certificate: %w", err)
			}
			certs = append(certs, cert)
		}

		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}

		if _, err := certs[0].Verify(opts); err != nil {
			return fmt.Errorf("verifying peer chain: %w", err)
		}
		return nil
	}
}

// checkRedirect implements the redirect policy: either stop at the
// first redirect, or follow up to the configured limit, optionally
// stripping the Referer header Go sets automatically.
func checkRedirect(cfg Config) func(req *http.Request, via []*http.Request) error {
	if cfg.NoRedirects {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	limit := cfg.redirectLimit()
	stripReferer := cfg.NoReferer
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects", limit)
		}
		if stripReferer {
			req.Header.Del("Referer")
		}
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// defaultHeaders is an http.RoundTripper applying configured headers to
// every request that does not already carry them.
type defaultHeaders struct {
	headers http.Header
	base    http.RoundTripper
}

func (dh defaultHeaders) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	for k, vals := range dh.headers {
		if cpy.Header.Get(k) != "" {
			continue
		}
		for _, v := range vals {
			cpy.Header.Add(k, v)
		}
	}
	return dh.base.RoundTrip(cpy)
}
