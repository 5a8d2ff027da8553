package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rerank service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Cache     CacheConfig     `yaml:"cache"`
	Remote    RemoteConfig    `yaml:"remote"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
	MaxCandidates   int   `yaml:"max_candidates"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// CacheConfig holds the remote score cache settings. Empty addrs disables it.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a cache backend is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// RemoteConfig holds remote scorer endpoints, keyed by the provider name
// pipeline steps refer to.
type RemoteConfig struct {
	CrossEncoder *CrossEncoderConfig `yaml:"cross_encoder"`
	Cohere       *CohereConfig       `yaml:"cohere"`
}

// ClientConfig holds settings shared by remote HTTP clients.
type ClientConfig struct {
	TimeoutSec       int     `yaml:"timeout_sec"`
	RatePerSec       float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst            int     `yaml:"burst"`
	BreakerFailures  uint32  `yaml:"breaker_failures"` // consecutive failures that open the breaker
	BreakerOpenSec   int     `yaml:"breaker_open_sec"`
	MaxResponseBytes int64   `yaml:"max_response_bytes"`
}

// CrossEncoderConfig configures a self-hosted cross-encoder server.
type CrossEncoderConfig struct {
	URL    string       `yaml:"url"`
	Client ClientConfig `yaml:"client"`
}

// CohereConfig configures a Cohere-compatible rerank API.
type CohereConfig struct {
	BaseURL string       `yaml:"base_url"`
	APIKey  string       `yaml:"api_key"`
	Model   string       `yaml:"model"`
	Client  ClientConfig `yaml:"client"`
}

// EmbeddingConfig configures the OpenAI-compatible query embedder. Empty
// model disables it.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// Enabled reports whether a query embedder is configured.
func (c EmbeddingConfig) Enabled() bool { return c.Model != "" }

// PipelineConfig is the ordered list of pipeline steps.
type PipelineConfig struct {
	Steps []StepConfig `yaml:"steps"`
}

// Step kinds accepted in StepConfig.Kind.
const (
	StepBM25       = "bm25"
	StepDecay      = "decay"
	StepBoost      = "boost"
	StepPrior      = "prior"
	StepSimilarity = "similarity"
	StepRemote     = "remote"
	StepCombine    = "combine"
	StepMMR        = "mmr"
)

// StepConfig is a tagged step: Kind selects which of the blocks applies.
type StepConfig struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"`
	BM25       *BM25Config       `yaml:"bm25"`
	Decay      *DecayConfig      `yaml:"decay"`
	Boost      *BoostConfig      `yaml:"boost"`
	Similarity *SimilarityConfig `yaml:"similarity"`
	Remote     *RemoteStepConfig `yaml:"remote"`
	Combine    *CombineConfig    `yaml:"combine"`
	MMR        *MMRConfig        `yaml:"mmr"`
}

// BM25Config overrides BM25 defaults. Nil fields keep the default.
type BM25Config struct {
	K1       *float64 `yaml:"k1"`
	B        *float64 `yaml:"b"`
	IDFFloor *float64 `yaml:"idf_floor"`
	MinN     int      `yaml:"min_ngram"`
	MaxN     int      `yaml:"max_ngram"`
	Fields   []string `yaml:"fields"`
}

// DecayConfig configures time decay. Rate has no default.
type DecayConfig struct {
	Rate             float64       `yaml:"rate"`
	Unit             time.Duration `yaml:"unit"`
	Curve            string        `yaml:"curve"`
	RequireTimestamp bool          `yaml:"require_timestamp"`
}

// BoostConfig configures an expression boost. Empty expression reads Record.Boost.
type BoostConfig struct {
	Expression string `yaml:"expression"`
}

// SimilarityConfig configures embedding/keyword similarity.
type SimilarityConfig struct {
	Dimensions int  `yaml:"dimensions"`
	EmbedQuery bool `yaml:"embed_query"` // use the configured query embedder
}

// RemoteStepConfig configures a remote scoring step.
type RemoteStepConfig struct {
	Provider       string        `yaml:"provider"` // cross_encoder, cohere
	BatchSize      int           `yaml:"batch_size"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	Policy         string        `yaml:"policy"` // fail_fast (default), neutral_fallback
	Cache          bool          `yaml:"cache"`
}

// CombineConfig configures the combiner.
type CombineConfig struct {
	Strategy  string             `yaml:"strategy"`
	Weights   map[string]float64 `yaml:"weights"`
	Normalize map[string]string  `yaml:"normalize"`
	RRFK      float64            `yaml:"rrf_k"`
}

// MMRConfig configures the diversity re-ranker.
type MMRConfig struct {
	Lambda    *float64 `yaml:"lambda"`
	K         int      `yaml:"k"`
	Relevance string   `yaml:"relevance"`
	Threshold *float64 `yaml:"threshold"`
	// Similarity is cosine (default), dot or euclidean.
	Similarity string `yaml:"similarity"`
	// Embedding is content (default) or title.
	Embedding string `yaml:"embedding"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 10 << 20
	}
	if c.HTTP.MaxCandidates <= 0 {
		c.HTTP.MaxCandidates = 1000
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "rerank:"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 24 * 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Tracing.Enabled && c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1
	}
	if c.Remote.CrossEncoder != nil {
		c.Remote.CrossEncoder.Client.applyDefaults()
	}
	if c.Remote.Cohere != nil {
		c.Remote.Cohere.Client.applyDefaults()
		if c.Remote.Cohere.BaseURL == "" {
			c.Remote.Cohere.BaseURL = "https://api.cohere.com"
		}
		if c.Remote.Cohere.Model == "" {
			c.Remote.Cohere.Model = "rerank-v3.5"
		}
	}
	for i := range c.Pipeline.Steps {
		if c.Pipeline.Steps[i].Name == "" {
			c.Pipeline.Steps[i].Name = c.Pipeline.Steps[i].Kind
		}
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 10
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpenSec <= 0 {
		c.BreakerOpenSec = 30
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 4 << 20
	}
}

// Validate checks the configuration for correctness. Step parameters are
// validated when the pipeline is built.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0 and 1, got %v", c.Tracing.SamplingRate)
	}
	if c.Remote.CrossEncoder != nil && c.Remote.CrossEncoder.URL == "" {
		return fmt.Errorf("remote.cross_encoder.url is required")
	}
	if c.Remote.Cohere != nil && c.Remote.Cohere.APIKey == "" {
		return fmt.Errorf("remote.cohere.api_key is required")
	}
	if len(c.Pipeline.Steps) == 0 {
		return fmt.Errorf("pipeline.steps must not be empty")
	}
	for i, st := range c.Pipeline.Steps {
		if err := c.validateStep(st); err != nil {
			return fmt.Errorf("pipeline.steps[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) validateStep(st StepConfig) error {
	switch st.Kind {
	case StepBM25, StepPrior, StepBoost, StepMMR:
	case StepDecay:
		if st.Decay == nil {
			return fmt.Errorf("decay block is required (rate has no default)")
		}
	case StepSimilarity:
		if st.Similarity != nil && st.Similarity.EmbedQuery && !c.Embedding.Enabled() {
			return fmt.Errorf("embed_query needs embedding.model")
		}
	case StepCombine:
		if st.Combine == nil || len(st.Combine.Weights) == 0 {
			return fmt.Errorf("combine.weights is required")
		}
	case StepRemote:
		if st.Remote == nil {
			return fmt.Errorf("remote block is required")
		}
		switch st.Remote.Provider {
		case "cross_encoder":
			if c.Remote.CrossEncoder == nil {
				return fmt.Errorf("provider cross_encoder is not configured under remote")
			}
		case "cohere":
			if c.Remote.Cohere == nil {
				return fmt.Errorf("provider cohere is not configured under remote")
			}
		default:
			return fmt.Errorf("remote.provider must be \"cross_encoder\" or \"cohere\", got %q", st.Remote.Provider)
		}
		if st.Remote.Cache && !c.Cache.Enabled() {
			return fmt.Errorf("remote.cache needs cache.addrs")
		}
	default:
		return fmt.Errorf("unknown step kind %q", st.Kind)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
