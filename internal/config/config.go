package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// Generation provider names accepted in configuration.
const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL           string `yaml:"databaseURL"`
	PoolMinConns          int    `yaml:"poolMinConns"`
	PoolMaxConns          int    `yaml:"poolMaxConns"`
	CommandTimeoutSeconds int    `yaml:"commandTimeoutSeconds"`

	GenerationProvider string  `yaml:"generationProvider"`
	GenerationBaseURL  string  `yaml:"generationBaseURL"`
	GenerationAPIKey   string  `yaml:"generationAPIKey"`
	GenerationModel    string  `yaml:"generationModel"`
	Temperature        float64 `yaml:"temperature"`
	MaxAttempts        int     `yaml:"maxAttempts"`
	RetryDelayMs       int     `yaml:"retryDelayMs"`

	RedisAddr             string `yaml:"redisAddr"`
	RedisPassword         string `yaml:"redisPassword"`
	RecordCacheTTLSeconds int    `yaml:"recordCacheTTLSeconds"`

	// AnalyzeRateLimitPerMinute caps analysis requests per client IP per
	// minute. Zero disables throttling; enabling it requires redisAddr.
	AnalyzeRateLimitPerMinute int `yaml:"analyzeRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides and defaults, and validates. Missing required values are an error;
// callers treat that as fatal at startup.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables.
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = ProviderGemini
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PoolMinConns == 0 {
		cfg.PoolMinConns = 5
	}
	if cfg.PoolMaxConns == 0 {
		cfg.PoolMaxConns = 20
	}
	if cfg.CommandTimeoutSeconds == 0 {
		cfg.CommandTimeoutSeconds = 60
	}
	if cfg.RecordCacheTTLSeconds == 0 {
		cfg.RecordCacheTTLSeconds = 3600
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml or GENERATION_MODEL)")
	}
	switch cfg.GenerationProvider {
	case ProviderGemini:
		if cfg.GenerationAPIKey == "" {
			return errors.New("config: generationAPIKey is required for gemini (set in config.yaml or GEMINI_API_KEY)")
		}
	case ProviderOpenAICompat:
		if cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required for openai-compat")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("config: temperature %v out of range [0, 2]", cfg.Temperature)
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("config: maxAttempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelayMs < 0 {
		return fmt.Errorf("config: retryDelayMs cannot be negative, got %d", cfg.RetryDelayMs)
	}
	if cfg.PoolMinConns < 0 || cfg.PoolMaxConns < 1 || cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("config: invalid pool bounds min=%d max=%d", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	if cfg.CommandTimeoutSeconds < 1 {
		return fmt.Errorf("config: commandTimeoutSeconds must be at least 1, got %d", cfg.CommandTimeoutSeconds)
	}
	if cfg.AnalyzeRateLimitPerMinute < 0 {
		return fmt.Errorf("config: analyzeRateLimitPerMinute cannot be negative, got %d", cfg.AnalyzeRateLimitPerMinute)
	}
	if cfg.AnalyzeRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: analyzeRateLimitPerMinute requires redisAddr")
	}
	return nil
}
