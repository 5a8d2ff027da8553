package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/config"
	dbValkey "github.com/kailas-cloud/rerank/internal/db/valkey"
	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/metrics"
	"github.com/kailas-cloud/rerank/internal/repository/scorecache"
	"github.com/kailas-cloud/rerank/internal/transport/cohere"
	"github.com/kailas-cloud/rerank/internal/transport/crossencoder"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
	openaiEmb "github.com/kailas-cloud/rerank/internal/transport/openai"
	healthuc "github.com/kailas-cloud/rerank/internal/usecase/health"
)

// remotes are the out-of-process collaborators a pipeline can reference.
type remotes struct {
	scorers  map[string]domain.RemoteScorer
	cached   map[string]domain.RemoteScorer
	embedder domain.QueryEmbedder
	checkers map[string]healthuc.Checker
}

// buildRemotes assembles the decorator chain per provider: HTTP adapter -> score cache.
func buildRemotes(cfg config.Config, cache *dbValkey.Store, logger *zap.Logger) remotes {
	r := remotes{
		scorers:  make(map[string]domain.RemoteScorer),
		cached:   make(map[string]domain.RemoteScorer),
		checkers: make(map[string]healthuc.Checker),
	}

	if ce := cfg.Remote.CrossEncoder; ce != nil {
		client := crossencoder.New(ce.URL, newHTTPClient(crossencoder.Provider, ce.Client, nil, logger))
		r.add(crossencoder.Provider, client, client)
	}
	if co := cfg.Remote.Cohere; co != nil {
		client := cohere.New(co.BaseURL, co.Model,
			newHTTPClient(cohere.Provider, co.Client, cohere.AuthHeaders(co.APIKey), logger))
		r.add(cohere.Provider, client, client)
	}

	if cache != nil {
		for name, s := range r.scorers {
			r.cached[name] = scorecache.New(s, cache, scorecache.Config{
				Provider:  name,
				KeyPrefix: cfg.Cache.KeyPrefix + "score:",
				TTL:       time.Duration(cfg.Cache.TTLSec) * time.Second,
			}, metrics.ScoreCacheTotal, logger)
		}
	}

	if cfg.Embedding.Enabled() {
		emb := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		r.embedder = emb
		r.checkers["embedding"] = emb
		logger.Info("Query embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}
	return r
}

func (r *remotes) add(name string, s domain.RemoteScorer, hc healthuc.Checker) {
	r.scorers[name] = s
	r.checkers[name] = hc
}

func newHTTPClient(provider string, cc config.ClientConfig, headers map[string]string, logger *zap.Logger) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Provider:         provider,
		Timeout:          time.Duration(cc.TimeoutSec) * time.Second,
		RatePerSec:       cc.RatePerSec,
		Burst:            cc.Burst,
		BreakerFailures:  cc.BreakerFailures,
		BreakerOpen:      time.Duration(cc.BreakerOpenSec) * time.Second,
		MaxResponseBytes: cc.MaxResponseBytes,
		Headers:          headers,
		Logger:           logger,
	})
}
