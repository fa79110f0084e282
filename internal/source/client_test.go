package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/ratelimit"
)

func testClient() *Client {
	return NewClient(ClientConfig{
		Limiter:       ratelimit.New(ratelimit.Config{TokensPerSecond: 1000, Burst: 1000}),
		RetryMax:      3,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	})
}

func TestFetchJSONNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient().FetchJSON(context.Background(), models.SourceReddit, srv.URL, nil)
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("404 should not be retried, got %d calls", got)
	}
}

func TestFetchJSONRetriesThrottling(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := testClient().FetchJSON(context.Background(), models.SourceReddit, srv.URL, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchJSONRetryExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient().FetchJSON(context.Background(), models.SourceGitHub, srv.URL, nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchJSONSetsHeaders(t *testing.T) {
	var gotUA, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	headers := map[string]string{"Authorization": "Bearer tok"}
	if _, err := testClient().FetchJSON(context.Background(), models.SourceGitHub, srv.URL, headers); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("user agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}
