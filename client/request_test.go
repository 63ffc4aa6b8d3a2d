package client_test

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tetherhttp/tether/client"
)

func TestNewRequest(t *testing.T) {
	req, err := client.NewRequest(http.MethodPost, "https://api.example.com/v1/items")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if req.Method() != http.MethodPost {
		t.Errorf("Method: got %q", req.Method())
	}
	if req.URL().Host != "api.example.com" {
		t.Errorf("URL host: got %q", req.URL().Host)
	}
}

func TestNewRequest_DefaultsToGet(t *testing.T) {
	req, err := client.NewRequest("", "https://example.com")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if req.Method() != http.MethodGet {
		t.Errorf("expected GET default, got %q", req.Method())
	}
}

func TestNewRequest_RejectsBadURLs(t *testing.T) {
	for _, rawURL := range []string{"://missing-scheme", "relative/path", ""} {
		if _, err := client.NewRequest(http.MethodGet, rawURL); err == nil {
			t.Errorf("expected error for %q, got nil", rawURL)
		}
	}
}

func TestRequestBuilder_Query(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Query().Get("page"))
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	resp, err := c.Get(ts.URL).Query(map[string]string{"page": "7"}).Send()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	body, err := resp.String()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if body != "7" {
		t.Errorf("expected query param echoed back, got %q", body)
	}
}

func TestRequestBuilder_BasicAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
		if got := r.Header.Get("Authorization"); got != want {
			t.Errorf("Authorization: got %q, want %q", got, want)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	resp, err := c.Get(ts.URL).BasicAuth("alice", "s3cret").Send()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Close()
}

func TestRequestBuilder_StreamingBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		w.Write(b)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	resp, err := c.Put(ts.URL).Body(strings.NewReader("streamed payload")).Send()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	body, err := resp.String()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if diff := cmp.Diff("streamed payload", body); diff != "" {
		t.Errorf("echo mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestBuilder_ErrorSticksToFirst(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	b := c.Get("://bad").Header("X-Later", "ignored").Query(map[string]string{"a": "b"})

	if _, err := b.Build(); err == nil {
		t.Fatal("expected the URL error from Build, got nil")
	}
	if _, err := b.Send(); err == nil {
		t.Fatal("expected the URL error from Send, got nil")
	}
}

func TestRequestBuilder_JSONEncodeError(t *testing.T) {
	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	// Channels cannot be JSON-encoded.
	if _, err := c.Post("https://example.com").JSON(make(chan int)).Send(); err == nil {
		t.Fatal("expected an encoding error, got nil")
	}
}
