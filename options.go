package rerank

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/transport/cohere"
	"github.com/kailas-cloud/rerank/internal/transport/crossencoder"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
	openaiEmb "github.com/kailas-cloud/rerank/internal/transport/openai"
)

// Option configures Build.
type Option interface {
	apply(*options)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	scorers  map[string]RemoteScorer
	embedder QueryEmbedder
	logger   *zap.Logger
	now      func() time.Time
	err      error
}

// WithScorer registers a remote scorer under the provider name that remote
// steps reference.
func WithScorer(provider string, s RemoteScorer) Option {
	return optionFunc(func(o *options) {
		if provider == "" || s == nil {
			o.err = errors.Join(o.err, errors.New("WithScorer: provider and scorer are required"))
			return
		}
		o.scorers[provider] = s
	})
}

// WithCrossEncoder registers a self-hosted cross-encoder server as provider
// "cross_encoder".
func WithCrossEncoder(url string) Option {
	return optionFunc(func(o *options) {
		client := httpclient.New(httpclient.Config{Provider: crossencoder.Provider, Logger: o.logger})
		o.scorers[crossencoder.Provider] = crossencoder.New(url, client)
	})
}

// WithCohere registers the Cohere rerank API as provider "cohere". Empty
// model selects the default.
func WithCohere(apiKey, model string) Option {
	return optionFunc(func(o *options) {
		client := httpclient.New(httpclient.Config{
			Provider: cohere.Provider,
			Headers:  cohere.AuthHeaders(apiKey),
			Logger:   o.logger,
		})
		o.scorers[cohere.Provider] = cohere.New("", model, client)
	})
}

// WithEmbedder sets the query embedder used by similarity steps with
// embed_query enabled.
func WithEmbedder(e QueryEmbedder) Option {
	return optionFunc(func(o *options) { o.embedder = e })
}

// WithOpenAIEmbedder embeds queries through an OpenAI-compatible API.
func WithOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) Option {
	return optionFunc(func(o *options) {
		o.embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     apiKey,
			BaseURL:    baseURL,
			Model:      model,
			Dimensions: dimensions,
			Logger:     o.logger,
		})
	})
}

// WithLogger sets the logger. Pass it before options that create clients.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) { o.logger = l })
}

// WithClock sets the reference time for decay steps when the query has no
// timestamp.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) { o.now = now })
}
