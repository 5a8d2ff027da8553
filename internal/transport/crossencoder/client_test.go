package crossencoder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
)

func newClient(srv *httptest.Server) *Client {
	return New(srv.URL+"/", httpclient.New(httpclient.Config{Provider: Provider, Transport: http.DefaultTransport}))
}

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Query != "capital of France" || req.TopK != 2 || len(req.Docs) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`[8.5, -3.25]`))
	}))
	defer srv.Close()

	scores, err := newClient(srv).Score(context.Background(), "capital of France", []string{"Paris", "Berlin"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 2 || scores[0] != 8.5 || scores[1] != -3.25 {
		t.Errorf("unexpected scores %v", scores)
	}
}

func TestScore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newClient(srv).Score(context.Background(), "q", []string{"a"}); !errors.Is(err, domain.ErrRemoteScoring) {
		t.Fatalf("expected ErrRemoteScoring, got %v", err)
	}
}

func TestScore_Empty(t *testing.T) {
	c := New("http://unused", httpclient.New(httpclient.Config{Provider: Provider}))
	scores, err := c.Score(context.Background(), "q", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("expected empty result, got %v %v", scores, err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	if err := newClient(srv).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
