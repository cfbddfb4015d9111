package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	NLI      NLIConfig
	Analysis AnalysisConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
}

type NLIConfig struct {
	Endpoint          string
	APIKey            string
	Provider          string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64
}

type AnalysisConfig struct {
	SimilarityThreshold float64
	NLIThreshold        float64
	MaxRequirements     int
	MinTextLength       int
	MaxProviderErrors   int
}

type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from an optional config file, REQ_ANALYZER_*
// environment variables and the legacy bare variables. An empty path
// searches the default locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/req-analyzer")
	}

	v.SetEnvPrefix("REQ_ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	a := c.Analysis
	if a.NLIThreshold < 0 || a.NLIThreshold > 1 {
		return fmt.Errorf("analysis.nliThreshold must be within [0,1], got %v", a.NLIThreshold)
	}
	if a.SimilarityThreshold < 0 || a.SimilarityThreshold > 1 {
		return fmt.Errorf("analysis.similarityThreshold must be within [0,1], got %v", a.SimilarityThreshold)
	}
	if a.MaxRequirements < 2 {
		return fmt.Errorf("analysis.maxRequirements must be at least 2, got %d", a.MaxRequirements)
	}
	if c.NLI.MaxAttempts < 1 {
		return fmt.Errorf("nli.maxAttempts must be at least 1, got %d", c.NLI.MaxAttempts)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdownTimeout", 15*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("nli.endpoint", "https://api-inference.huggingface.co/models/cross-encoder/nli-deberta-v3-base")
	v.SetDefault("nli.apiKey", "")
	v.SetDefault("nli.provider", "huggingface-nli")
	v.SetDefault("nli.timeout", 30*time.Second)
	v.SetDefault("nli.maxAttempts", 3)
	v.SetDefault("nli.requestsPerSecond", 0)

	v.SetDefault("analysis.similarityThreshold", 0.0001)
	v.SetDefault("analysis.nliThreshold", 0.8)
	v.SetDefault("analysis.maxRequirements", 100)
	v.SetDefault("analysis.minTextLength", 10)
	v.SetDefault("analysis.maxProviderErrors", 5)

	v.SetDefault("cache.redisAddr", "")
	v.SetDefault("cache.redisPassword", "")
	v.SetDefault("cache.redisDB", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("auth.jwtSecret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"database.url":   "DATABASE_URL",
		"server.port":    "PORT",
		"nli.apiKey":     "NLI_API_KEY",
		"auth.jwtSecret": "JWT_SECRET",
	}
	for key, env := range legacy {
		prefixed := "REQ_ANALYZER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}
