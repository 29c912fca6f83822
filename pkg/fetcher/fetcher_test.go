package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"fashion-advisor-go/pkg/fetcher"
)

func TestDoDecodesJSONAndSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/online-search-agent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("k") != "3" {
			t.Errorf("missing query param, got %q", r.URL.RawQuery)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body err: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "echo:" + body["user_query"]})
	}))
	defer srv.Close()

	c := fetcher.New(srv.URL, srv.Client())
	var out struct {
		Message string `json:"message"`
	}
	err := c.Do(context.Background(), http.MethodPost, "/ai/online-search-agent", &fetcher.Options{
		Query: url.Values{"k": {"3"}},
		JSON:  map[string]string{"user_query": "boots"},
	}, &out)
	if err != nil {
		t.Fatalf("Do err: %v", err)
	}
	if out.Message != "echo:boots" {
		t.Fatalf("unexpected message: %s", out.Message)
	}
}

func TestDoReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := fetcher.New(srv.URL, srv.Client())
	err := c.Do(context.Background(), http.MethodGet, "/products/all", nil, nil)

	var httpErr *fetcher.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", httpErr.StatusCode)
	}
	if err.Error() != "Fetch error: 503 Service Unavailable" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestDoDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fetcher.New(srv.URL, srv.Client())
	_ = c.Do(context.Background(), http.MethodPost, "/login", nil, nil)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestResolve(t *testing.T) {
	c := fetcher.New("http://backend:8000/", nil)
	cases := map[string]string{
		"/products/all":           "http://backend:8000/products/all",
		"products/1/metadata":     "http://backend:8000/products/1/metadata",
		"https://cdn.example/a.j": "https://cdn.example/a.j",
	}
	for in, want := range cases {
		if got := c.Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
	if fetcher.New("", nil).BaseURL() != fetcher.DefaultBaseURL {
		t.Fatal("expected default base url")
	}
}
