package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"ENV", "LOG_LEVEL", "PORT",
	"CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"VIES_ENDPOINT", "VIES_TIMEOUT_SECONDS", "VIES_MAX_REDIRECTS", "VIES_STRICT",
	"SENTRY_DSN", "SENTRY_ENABLED", "SENTRY_ENVIRONMENT", "SENTRY_RELEASE",
	"SENTRY_SAMPLE_RATE", "SENTRY_TRACES_SAMPLE_RATE", "SENTRY_DEBUG",
}

// isolateEnv runs the test in an empty directory with every config variable
// cleared so no developer .env leaks in.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	t.Chdir(dir)
	return dir
}

func TestNewConfig_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint16(3000), cfg.Port)
	assert.Empty(t, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 2.0, cfg.HTTP.RateLimitRPS)
	assert.Equal(t, uint16(10), cfg.HTTP.RateLimitBurst)
	assert.Equal(t, "", cfg.VIES.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.VIES.Timeout())
	assert.Equal(t, uint16(10), cfg.VIES.MaxRedirects)
	assert.False(t, cfg.VIES.Strict)
	assert.False(t, cfg.Sentry.Enabled)
	assert.Equal(t, 1.0, cfg.Sentry.SampleRate)
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENV", "prod")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, ,https://admin.example")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("VIES_ENDPOINT", "https://vies.example.test/checkVatService")
	t.Setenv("VIES_TIMEOUT_SECONDS", "5")
	t.Setenv("VIES_MAX_REDIRECTS", "3")
	t.Setenv("VIES_STRICT", "true")
	t.Setenv("SENTRY_ENABLED", "1")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.test/1")
	t.Setenv("SENTRY_TRACES_SAMPLE_RATE", "0.25")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 0.5, cfg.HTTP.RateLimitRPS)
	assert.Equal(t, "https://vies.example.test/checkVatService", cfg.VIES.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.VIES.Timeout())
	assert.Equal(t, uint16(3), cfg.VIES.MaxRedirects)
	assert.True(t, cfg.VIES.Strict)
	assert.True(t, cfg.Sentry.Enabled)
	assert.Equal(t, 0.25, cfg.Sentry.TracesSampleRate)
}

func TestNewConfig_FallsBackOnInvalidValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENV", "staging")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("PORT", "not-a-port")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint16(3000), cfg.Port)
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "relative endpoint",
			env:     map[string]string{"VIES_ENDPOINT": "/checkVatService"},
			wantErr: "VIES_ENDPOINT",
		},
		{
			name:    "unsupported scheme",
			env:     map[string]string{"VIES_ENDPOINT": "ftp://ec.europa.eu/checkVatService"},
			wantErr: "VIES_ENDPOINT",
		},
		{
			name:    "zero timeout",
			env:     map[string]string{"VIES_TIMEOUT_SECONDS": "0"},
			wantErr: "VIES_TIMEOUT_SECONDS",
		},
		{
			name:    "zero burst",
			env:     map[string]string{"RATE_LIMIT_BURST": "0"},
			wantErr: "RATE_LIMIT_BURST",
		},
		{
			name:    "sentry without dsn in prod",
			env:     map[string]string{"ENV": "prod", "SENTRY_ENABLED": "true"},
			wantErr: "SENTRY_DSN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := NewConfig()

			assert.Nil(t, cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewConfig_LoadsDotEnvFromParent(t *testing.T) {
	dir := isolateEnv(t)
	parent := filepath.Dir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(parent, ".env"), []byte("VIES_MAX_REDIRECTS=4\n"), 0o600))
	// godotenv does not override variables that are already set.
	require.NoError(t, os.Unsetenv("VIES_MAX_REDIRECTS"))

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, uint16(4), cfg.VIES.MaxRedirects)
}

func TestNewLogger(t *testing.T) {
	t.Run("prod writes json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "prod", "info")

		logger.Info("lookup", "country_code", "BE")

		assert.True(t, strings.HasPrefix(buf.String(), "{"))
		assert.Contains(t, buf.String(), `"country_code":"BE"`)
		assert.Contains(t, buf.String(), `"service":"vies"`)
	})

	t.Run("dev writes text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "dev", "info")

		logger.Info("lookup", "country_code", "BE")

		assert.Contains(t, buf.String(), "country_code=BE")
	})

	t.Run("debug adds source", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "dev", "debug")

		logger.Debug("lookup")

		assert.Contains(t, buf.String(), "source=")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "dev", "warn")

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
