package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"autoqa/internal/crawler"
	"autoqa/internal/threshold"
)

// StorageConfig selects where documents and interactions are kept.
type StorageConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// RetrievalConfig configures the retriever and index rebuilds.
type RetrievalConfig struct {
	TopK         int `yaml:"top_k"`
	RebuildEvery int `yaml:"rebuild_every"`
}

// AnswerConfig configures the answer composer.
type AnswerConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	TimeoutSecs         int     `yaml:"timeout_secs"`
}

// ThresholdConfig bounds the adaptive retrieval threshold.
type ThresholdConfig struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Step    float64 `yaml:"step"`
	Initial float64 `yaml:"initial"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects the embedder. "none" disables the vector backend.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAILLMConfig holds configuration for the OpenAI-compatible chat model.
type OpenAILLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// LLMConfig selects the answer generator. "none" keeps answers extractive.
type LLMConfig struct {
	Type   string           `yaml:"type"`
	OpenAI *OpenAILLMConfig `yaml:"openai,omitempty"`
}

// CrawlerConfig configures crawl sessions.
type CrawlerConfig struct {
	UserAgent       string   `yaml:"user_agent"`
	TimeoutSecs     int      `yaml:"timeout_secs"`
	MaxPages        int      `yaml:"max_pages"`
	DelaySecs       float64  `yaml:"delay_secs"`
	MinContentChars int      `yaml:"min_content_chars"`
	MaxContentChars int      `yaml:"max_content_chars"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	SkipDomains     []string `yaml:"skip_domains"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownSecs    int    `yaml:"shutdown_secs"`
	MaxRequestBytes int64  `yaml:"max_request_bytes"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Storage     StorageConfig     `yaml:"storage"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Answer      AnswerConfig      `yaml:"answer"`
	Threshold   ThresholdConfig   `yaml:"threshold"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Server      ServerConfig      `yaml:"server"`
}

// LoadEnv loads variables from a .env file in the working directory, if any.
// Variables already set in the environment win.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/autoqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/autoqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges and implementation names.
func (c *AppConfig) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return &ConfigError{Field: "storage.type", Reason: fmt.Sprintf("unknown store %q", c.Storage.Type)}
	}
	if c.Retrieval.TopK <= 0 {
		return &ConfigError{Field: "retrieval.top_k", Reason: "must be positive"}
	}
	if c.Answer.ConfidenceThreshold < 0 || c.Answer.ConfidenceThreshold > 1 {
		return &ConfigError{Field: "answer.confidence_threshold", Reason: "must be within [0, 1]"}
	}
	if err := c.Threshold.controllerConfig().Validate(); err != nil {
		return &ConfigError{Field: "threshold", Reason: err.Error()}
	}
	switch c.Embedder.Type {
	case "none":
	case "openai":
		if c.Embedder.OpenAI == nil {
			return &ConfigError{Field: "embedder.openai", Reason: "missing"}
		}
	default:
		return &ConfigError{Field: "embedder.type", Reason: fmt.Sprintf("unknown embedder %q", c.Embedder.Type)}
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return &ConfigError{Field: "vector_store.qdrant.url", Reason: "missing"}
		}
	default:
		return &ConfigError{Field: "vector_store.type", Reason: fmt.Sprintf("unknown vector store %q", c.VectorStore.Type)}
	}
	switch c.LLM.Type {
	case "none":
	case "openai":
		if c.LLM.OpenAI == nil {
			return &ConfigError{Field: "llm.openai", Reason: "missing"}
		}
	default:
		return &ConfigError{Field: "llm.type", Reason: fmt.Sprintf("unknown llm %q", c.LLM.Type)}
	}
	if c.Crawler.DelaySecs < 0 {
		return &ConfigError{Field: "crawler.delay_secs", Reason: "must not be negative"}
	}
	if c.Crawler.MinContentChars > c.Crawler.MaxContentChars {
		return &ConfigError{Field: "crawler.min_content_chars", Reason: "exceeds max_content_chars"}
	}
	return nil
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration " + e.Field + ": " + e.Reason
}

// ControllerConfig converts the threshold section.
func (c *AppConfig) ControllerConfig() threshold.Config {
	return c.Threshold.controllerConfig()
}

func (t ThresholdConfig) controllerConfig() threshold.Config {
	return threshold.Config{Min: t.Min, Max: t.Max, Step: t.Step, Initial: t.Initial}
}

// CrawlerSettings converts the crawler section.
func (c *AppConfig) CrawlerSettings() crawler.Config {
	cc := c.Crawler
	return crawler.Config{
		UserAgent:       cc.UserAgent,
		Timeout:         seconds(cc.TimeoutSecs),
		MaxBodyBytes:    cc.MaxBodyBytes,
		MinContentChars: cc.MinContentChars,
		MaxContentChars: cc.MaxContentChars,
		MaxTitleChars:   crawler.DefaultConfig().MaxTitleChars,
		DefaultMaxPages: cc.MaxPages,
		DefaultDelay:    time.Duration(cc.DelaySecs * float64(time.Second)),
		MaxBackoff:      crawler.DefaultConfig().MaxBackoff,
		SkipDomains:     cc.SkipDomains,
	}
}

// AnswerTimeout is the generator timeout.
func (c *AppConfig) AnswerTimeout() time.Duration {
	return seconds(c.Answer.TimeoutSecs)
}

// DataDir returns the directory holding application data.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "autoqa"), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "autoqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Storage:     StorageConfig{Type: "sqlite"},
		Embedder:    EmbedderConfig{Type: "none"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		LLM:         LLMConfig{Type: "none"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "sqlite"
	}
	if cfg.Storage.Type == "sqlite" && cfg.Storage.Path == "" {
		if dir, err := DataDir(); err == nil {
			cfg.Storage.Path = filepath.Join(dir, "autoqa.db")
		} else {
			cfg.Storage.Path = "autoqa.db"
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 6
	}
	if cfg.Retrieval.RebuildEvery == 0 {
		cfg.Retrieval.RebuildEvery = 5
	}
	if cfg.Answer.ConfidenceThreshold == 0 {
		cfg.Answer.ConfidenceThreshold = 0.25
	}
	if cfg.Answer.TimeoutSecs == 0 {
		cfg.Answer.TimeoutSecs = 30
	}
	if cfg.Threshold == (ThresholdConfig{}) {
		d := threshold.DefaultConfig()
		cfg.Threshold = ThresholdConfig{Min: d.Min, Max: d.Max, Step: d.Step, Initial: d.Initial}
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "none"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 2
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "documents"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "none"
	}
	if cfg.LLM.Type == "openai" {
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAILLMConfig{Temperature: 0.2}
		}
		if cfg.LLM.OpenAI.BaseURL == "" {
			cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.OpenAI.APIKeyEnv == "" {
			cfg.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.OpenAI.Model == "" {
			cfg.LLM.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.LLM.OpenAI.TimeoutSecs == 0 {
			cfg.LLM.OpenAI.TimeoutSecs = 60
		}
	}

	d := crawler.DefaultConfig()
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = d.UserAgent
	}
	if cfg.Crawler.TimeoutSecs == 0 {
		cfg.Crawler.TimeoutSecs = int(d.Timeout / time.Second)
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = d.DefaultMaxPages
	}
	if cfg.Crawler.DelaySecs == 0 {
		cfg.Crawler.DelaySecs = d.DefaultDelay.Seconds()
	}
	if cfg.Crawler.MinContentChars == 0 {
		cfg.Crawler.MinContentChars = d.MinContentChars
	}
	if cfg.Crawler.MaxContentChars == 0 {
		cfg.Crawler.MaxContentChars = d.MaxContentChars
	}
	if cfg.Crawler.MaxBodyBytes == 0 {
		cfg.Crawler.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.Crawler.SkipDomains == nil {
		cfg.Crawler.SkipDomains = append([]string(nil), d.SkipDomains...)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownSecs == 0 {
		cfg.Server.ShutdownSecs = 10
	}
	if cfg.Server.MaxRequestBytes == 0 {
		cfg.Server.MaxRequestBytes = 1 << 20
	}
}
