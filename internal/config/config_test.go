package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "newsdata", cfg.SourceKind)
	assert.Equal(t, []string{"top", "medium"}, cfg.NewsTiers)
	assert.Equal(t, 30000, cfg.PriorityThreshold)
	assert.Equal(t, 2*time.Second, cfg.OracleInterval)
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.Equal(t, "open", cfg.AggregateMode)
	assert.Equal(t, 4, cfg.AggregateMinIssues)
	assert.InDelta(t, 0.3, cfg.AggregateTemperature, 1e-6)
}

func TestLoadKeepsZeroTemperature(t *testing.T) {
	t.Setenv("AGGREGATE_TEMPERATURE", "0")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Zero(t, cfg.AggregateTemperature)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuedesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oracle_vendor: cohere
priority_threshold: 20000
request_timeout: 10s
news_tiers: [top]
aggregate_mode: fixed
`), 0o644))

	t.Setenv("PRIORITY_THRESHOLD", "25000")
	t.Setenv("ORACLE_INTERVAL", "3")
	t.Setenv("NEWS_TIERS", "top, medium ,low")
	t.Setenv("DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cohere", cfg.OracleVendor)
	assert.Equal(t, 25000, cfg.PriorityThreshold)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3*time.Second, cfg.OracleInterval)
	assert.Equal(t, []string{"top", "medium", "low"}, cfg.NewsTiers)
	assert.Equal(t, "fixed", cfg.AggregateMode)
	assert.True(t, cfg.Debug)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.StorageBackend = "postgres" }, "DATABASE_URL"},
		{"mongo without uri", func(c *Config) { c.StorageBackend = "mongo" }, "MONGO_URI"},
		{"unknown backend", func(c *Config) { c.StorageBackend = "sqlite" }, "STORAGE_BACKEND"},
		{"unknown source", func(c *Config) { c.SourceKind = "twitter" }, "SOURCE_KIND"},
		{"bad mode", func(c *Config) { c.AggregateMode = "strict" }, "AGGREGATE_MODE"},
		{"zero threshold", func(c *Config) { c.PriorityThreshold = 0 }, "PRIORITY_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireIngest(t *testing.T) {
	cfg := defaults()
	assert.ErrorContains(t, cfg.RequireIngest(), "NEWS_API_KEY")

	cfg.NewsAPIKey = "k"
	assert.ErrorContains(t, cfg.RequireIngest(), "gemini")

	cfg.GeminiAPIKey = "g"
	assert.NoError(t, cfg.RequireIngest())

	cfg.OracleVendor = "together"
	assert.Error(t, cfg.RequireOracle())
	cfg.TogetherAPIKey = "t"
	assert.Equal(t, "t", cfg.OracleAPIKey())
	assert.NoError(t, cfg.RequireOracle())
}
