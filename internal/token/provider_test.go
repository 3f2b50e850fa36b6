package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchPostsIdentityAndDecodesDetails(t *testing.T) {
	var got Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc","clientId":"alice","expires":1700000000000}`))
	}))
	defer ts.Close()

	p := NewProvider(ts.URL, ts.Client(), nil)
	tok, err := p.Fetch(context.Background(), Request{ClientID: "alice", UserID: "42", UserEmail: "a@example.com"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if got.ClientID != "alice" || got.UserID != "42" || got.UserEmail != "a@example.com" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if tok.Token != "abc" || tok.ClientID != "alice" || tok.Expires != 1700000000000 {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if len(tok.Raw) == 0 {
		t.Fatalf("expected raw body to be kept")
	}
}

func TestFetchPlainTextToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  plain-token\n"))
	}))
	defer ts.Close()

	tok, err := NewProvider(ts.URL, ts.Client(), nil).Fetch(context.Background(), Request{ClientID: "bob"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tok.Token != "plain-token" {
		t.Fatalf("expected plain-token, got %q", tok.Token)
	}
}

func TestFetchNon2xxWrapsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"denied"}`))
	}))
	defer ts.Close()

	_, err := NewProvider(ts.URL, ts.Client(), nil).Fetch(context.Background(), Request{ClientID: "bob"})

	var fetchErr *TokenFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected TokenFetchError, got %T: %v", err, err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", fetchErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "failed to fetch token: request failed with status code 403") {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	details, ok := fetchErr.Details().(map[string]any)
	if !ok || details["error"] != "denied" {
		t.Fatalf("unexpected details: %#v", fetchErr.Details())
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewProvider(url, nil, nil).Fetch(context.Background(), Request{ClientID: "bob"})

	var fetchErr *TokenFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected TokenFetchError, got %T: %v", err, err)
	}
	if fetchErr.StatusCode != 0 {
		t.Fatalf("expected no status for network failure, got %d", fetchErr.StatusCode)
	}
}
