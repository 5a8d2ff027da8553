package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(srv.URL, "", httpclient.New(httpclient.Config{
		Provider:  Provider,
		Headers:   AuthHeaders("test-key"),
		Transport: http.DefaultTransport,
	}))
}

func TestScore_MapsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != DefaultModel || req.TopN != 3 {
			t.Errorf("unexpected request %+v", req)
		}
		// sorted by relevance, one document missing
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.9},{"index":0,"relevance_score":0.1}]}`))
	}))
	defer srv.Close()

	scores, err := newTestClient(srv).Score(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[0] != 0.1 || scores[2] != 0.9 {
		t.Errorf("unexpected scores %v", scores)
	}
	if !math.IsNaN(scores[1]) {
		t.Errorf("missing result should be NaN, got %v", scores[1])
	}
}

func TestScore_OutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Score(context.Background(), "q", []string{"a"})
	if !errors.Is(err, domain.ErrRemoteScoring) {
		t.Fatalf("expected ErrRemoteScoring, got %v", err)
	}
}

func TestScore_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api token"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Score(context.Background(), "q", []string{"a"})
	var se *httpclient.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.5}]}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestHealthCheck_ReusesResult(t *testing.T) {
	var hits atomic.Int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.5}]}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(srv)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := c.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected one upstream call within the TTL, got %d", got)
	}

	failing.Store(true)
	now = now.Add(DefaultHealthTTL)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, domain.ErrRemoteScoring) {
		t.Fatalf("expected remote error after expiry, got %v", err)
	}
	failing.Store(false)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, domain.ErrRemoteScoring) {
		t.Errorf("expected the cached failure within the TTL, got %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 upstream calls, got %d", got)
	}
}
