package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the datalens API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
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
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	Provider         string `yaml:"provider"` // openai, gemini
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	VisionModel      string `yaml:"vision_model"` // defaults to Model
	MaxRetries       int    `yaml:"max_retries"`
	InitialBackoffMS int    `yaml:"initial_backoff_ms"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, gemini
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// IndexConfig holds embedding index store settings.
type IndexConfig struct {
	Store     string   `yaml:"store"` // memory, chromem, redis
	Path      string   `yaml:"path"`  // chromem persistence directory
	Addrs     []string `yaml:"addrs"` // redis addresses
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
	TopK      int      `yaml:"top_k"`
}

// ScrapeConfig holds web scraping settings.
type ScrapeConfig struct {
	TimeoutSec   int   `yaml:"timeout_sec"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// AnalysisConfig holds pipeline settings for one request.
type AnalysisConfig struct {
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	PageTextLimit     int `yaml:"page_text_limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Writes happen after the whole pipeline finishes, so the write
		// timeout must cover the request deadline.
		c.HTTP.WriteTimeoutSec = 330
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 32
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.0-flash"
	}
	if c.LLM.VisionModel == "" {
		c.LLM.VisionModel = c.LLM.Model
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.InitialBackoffMS <= 0 {
		c.LLM.InitialBackoffMS = 1000
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = c.LLM.Provider
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "gemini":
			c.Embedding.Model = "gemini-embedding-001"
		default:
			c.Embedding.Model = "text-embedding-3-small"
		}
	}
	if c.Index.Store == "" {
		c.Index.Store = "memory"
	}
	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(os.TempDir(), "datalens-index")
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "datalens:"
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 5
	}
	if c.Scrape.TimeoutSec <= 0 {
		c.Scrape.TimeoutSec = 20
	}
	if c.Scrape.MaxBodyBytes <= 0 {
		c.Scrape.MaxBodyBytes = 8 << 20
	}
	if c.Analysis.RequestTimeoutSec <= 0 {
		c.Analysis.RequestTimeoutSec = 300
	}
	if c.Analysis.PageTextLimit <= 0 {
		c.Analysis.PageTextLimit = 2000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"gemini\", got %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"gemini\", got %q", c.Embedding.Provider)
	}
	switch c.Index.Store {
	case "memory", "chromem":
	case "redis":
		if len(c.Index.Addrs) == 0 {
			return fmt.Errorf("index.addrs is required for the redis store")
		}
	default:
		return fmt.Errorf("index.store must be \"memory\", \"chromem\", or \"redis\", got %q", c.Index.Store)
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

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
