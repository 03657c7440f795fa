package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	Port     uint16
	HTTP     HTTPConfig
	VIES     VIESConfig
	Sentry   SentryConfig
}

// HTTPConfig holds settings for the inbound API.
type HTTPConfig struct {
	// AllowedOrigins lists origins allowed to call the API from a browser.
	// Empty disables CORS; "*" allows any origin.
	AllowedOrigins []string

	// RateLimitRPS is the per-client request rate on the lookup route.
	RateLimitRPS float64

	// RateLimitBurst is the per-client burst on the lookup route.
	RateLimitBurst uint16
}

// VIESConfig holds settings for the outbound checkVatService client.
type VIESConfig struct {
	// Endpoint is the SOAP endpoint. Empty selects the public VIES service.
	Endpoint string

	// TimeoutSeconds bounds a whole lookup, redirects included.
	TimeoutSeconds uint16

	// MaxRedirects caps how many redirects a lookup follows.
	MaxRedirects uint16

	// Strict reports an unreachable VIES as an error instead of an empty result.
	Strict bool
}

// Timeout returns TimeoutSeconds as a duration.
func (c VIESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN              string
	Enabled          bool
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvInt("PORT", 3000),
		HTTP: HTTPConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
			RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 2),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		VIES: VIESConfig{
			Endpoint:       getEnv("VIES_ENDPOINT", ""), // Empty uses the public service
			TimeoutSeconds: getEnvInt("VIES_TIMEOUT_SECONDS", 30),
			MaxRedirects:   getEnvInt("VIES_MAX_REDIRECTS", 10),
			Strict:         getEnvBool("VIES_STRICT", false),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Enabled:          getEnvBool("SENTRY_ENABLED", false), // Disabled by default for development
			Environment:      getEnv("SENTRY_ENVIRONMENT", "development"),
			Release:          getEnv("SENTRY_RELEASE", ""),
			SampleRate:       getEnvFloat("SENTRY_SAMPLE_RATE", 1.0),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0.0), // Disabled by default
			Debug:            getEnvBool("SENTRY_DEBUG", false),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.VIES.Endpoint != "" {
		u, err := url.Parse(cfg.VIES.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("VIES_ENDPOINT must be an absolute http(s) URL, got %q", cfg.VIES.Endpoint)
		}
	}

	if cfg.HTTP.RateLimitRPS <= 0 || cfg.HTTP.RateLimitBurst == 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be greater than zero")
	}

	if cfg.VIES.TimeoutSeconds == 0 {
		return nil, fmt.Errorf("VIES_TIMEOUT_SECONDS must be greater than zero")
	}

	if cfg.Sentry.Enabled && cfg.Sentry.DSN == "" && cfg.Env == "prod" {
		return nil, fmt.Errorf("SENTRY_DSN required when SENTRY_ENABLED is true in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var floatValue float64
		if _, err := fmt.Sscanf(value, "%f", &floatValue); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
