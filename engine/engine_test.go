package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuild_Defaults(t *testing.T) {
	eng, err := Build(Config{})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer eng.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer ts.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	resp, err := eng.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(b) != "ok" {
		t.Errorf("expected body %q, got %q", "ok", string(b))
	}
}

func TestBuild_BadRootCertificate(t *testing.T) {
	_, err := Build(Config{RootCAs: [][]byte{[]byte("not pem")}})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !errors.Is(err, ErrBadRootCertificate) {
		t.Errorf("expected ErrBadRootCertificate, got: %v", err)
	}
}

func TestBuild_BadIdentity(t *testing.T) {
	_, err := Build(Config{
		ClientCertPEM: []byte("not a cert"),
		ClientKeyPEM:  []byte("not a key"),
	})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative redirect limit", Config{RedirectLimit: -1}},
		{"negative connect timeout", Config{ConnectTimeout: -time.Second}},
		{"negative idle conns", Config{MaxIdlePerHost: -1}},
		{"zero throttle rps", Config{Throttle: &ThrottleConfig{RPS: 0, Burst: 1}}},
		{"zero throttle burst", Config{Throttle: &ThrottleConfig{RPS: 1, Burst: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfg)
			if err == nil {
				t.Fatal("expected a validation error, got nil")
			}

			var fields FieldErrors
			if !errors.As(err, &fields) {
				t.Fatalf("expected FieldErrors, got %T: %v", err, err)
			}
		})
	}
}

func TestDo_ObservesContextCancellation(t *testing.T) {
	started := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer ts.Close()

	eng, err := Build(Config{})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := eng.Do(req)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a cancellation error, got nil")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestCheckRedirect_Limit(t *testing.T) {
	fn := checkRedirect(Config{RedirectLimit: 2})

	if err := fn(&http.Request{Header: http.Header{}}, make([]*http.Request, 1)); err != nil {
		t.Errorf("expected redirect under the limit to pass, got: %v", err)
	}
	if err := fn(&http.Request{Header: http.Header{}}, make([]*http.Request, 2)); err == nil {
		t.Error("expected redirect at the limit to fail")
	}
}

func TestCheckRedirect_Disabled(t *testing.T) {
	fn := checkRedirect(Config{NoRedirects: true})

	if err := fn(nil, nil); !errors.Is(err, http.ErrUseLastResponse) {
		t.Errorf("expected ErrUseLastResponse, got: %v", err)
	}
}

func TestCheckRedirect_StripsReferer(t *testing.T) {
	fn := checkRedirect(Config{NoReferer: true})

	req := &http.Request{Header: http.Header{}}
	req.Header.Set("Referer", "https://origin.example.com")

	if err := fn(req, nil); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got := req.Header.Get("Referer"); got != "" {
		t.Errorf("expected Referer stripped, got %q", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestUserAgentRoundTripper(t *testing.T) {
	var got string
	rt := userAgent{value: "tether/1.0", base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header.Get("User-Agent")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got != "tether/1.0" {
		t.Errorf("expected User-Agent set, got %q", got)
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("original request must not be mutated")
	}
}

func TestDefaultHeadersRoundTripper(t *testing.T) {
	defaults := http.Header{}
	defaults.Set("X-Api-Key", "secret")
	defaults.Set("X-Override", "default")

	var got http.Header
	rt := defaultHeaders{headers: defaults, base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	req.Header.Set("X-Override", "mine")

	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got.Get("X-Api-Key") != "secret" {
		t.Errorf("expected default header applied, got %q", got.Get("X-Api-Key"))
	}
	if got.Get("X-Override") != "mine" {
		t.Errorf("expected request header to win, got %q", got.Get("X-Override"))
	}
}

func TestProxyFunc_ExplicitProxy(t *testing.T) {
	fn, err := proxyFunc(Config{Proxy: "http://proxy.example.com:3128"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://target.example.com", nil)
	u, err := fn(req)
	if err != nil {
		t.Fatalf("resolving proxy: %v", err)
	}
	if u == nil || u.Host != "proxy.example.com:3128" {
		t.Errorf("expected the configured proxy, got %v", u)
	}
}

func TestProxyFunc_BadProxyURL(t *testing.T) {
	if _, err := proxyFunc(Config{Proxy: "://bad"}); err == nil {
		t.Fatal("expected a parse error, got nil")
	}
}

func TestProxyFunc_NoProxy(t *testing.T) {
	fn, err := proxyFunc(Config{NoProxy: true})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if fn != nil {
		t.Error("expected a nil proxy func when proxying is disabled")
	}
}

func TestThrottle_ContextEnded(t *testing.T) {
	rt := newThrottle(1, 1, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrContextEnded) {
		t.Errorf("expected ErrContextEnded, got: %v", err)
	}
}
