// Package config loads settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/issuedesk.yaml"

type Config struct {
	// Feed settings
	SourceKind      string   `yaml:"source_kind"` // newsdata | rss
	NewsAPIKey      string   `yaml:"news_api_key"`
	NewsBaseURL     string   `yaml:"news_base_url"`
	NewsCountry     string   `yaml:"news_country"`
	NewsQuery       string   `yaml:"news_query"`
	NewsPageSize    int      `yaml:"news_page_size"`
	NewsTiers       []string `yaml:"news_tiers"`
	FeedsConfigPath string   `yaml:"feeds_config_path"`

	// Ingestion policy
	PriorityThreshold    int  `yaml:"priority_threshold"`
	ScrapeMissingContent bool `yaml:"scrape_missing_content"`

	// Oracle settings
	OracleVendor   string        `yaml:"oracle_vendor"` // gemini | openai | together | cohere
	OracleModel    string        `yaml:"oracle_model"`
	GeminiAPIKey   string        `yaml:"gemini_api_key"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	TogetherAPIKey string        `yaml:"together_api_key"`
	CohereAPIKey   string        `yaml:"cohere_api_key"`
	OracleInterval time.Duration `yaml:"oracle_interval"`
	OracleBurst    int           `yaml:"oracle_burst"`
	MaxOracleCalls int           `yaml:"max_oracle_calls"` // per day, 0 = unlimited

	// Aggregation
	AggregateMode      string `yaml:"aggregate_mode"` // open | fixed
	AggregateMinIssues int    `yaml:"aggregate_min_issues"`

	// AggregateTemperature of 0 asks for deterministic output.
	AggregateTemperature float32 `yaml:"aggregate_temperature"`

	// Storage settings
	StorageBackend  string `yaml:"storage_backend"` // postgres | mongo | file
	DatabaseURL     string `yaml:"database_url"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
	CorpusFilePath  string `yaml:"corpus_file_path"`

	// Cache settings
	RedisAddr                string `yaml:"redis_addr"`
	RedisPassword            string `yaml:"redis_password"`
	TranslationCacheTTLHours int    `yaml:"translation_cache_ttl_hours"`

	// App settings
	Debug          bool          `yaml:"debug"`
	LogFormat      string        `yaml:"log_format"` // json | console
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MonitoringPort string        `yaml:"monitoring_port"`
	ExportDir      string        `yaml:"export_dir"`
}

func defaults() *Config {
	return &Config{
		SourceKind:               "newsdata",
		NewsBaseURL:              "https://newsdata.io",
		NewsCountry:              "in",
		NewsQuery:                "Andhra Pradesh",
		NewsPageSize:             50,
		NewsTiers:                []string{"top", "medium"},
		FeedsConfigPath:          "configs/feeds.yaml",
		PriorityThreshold:        30000,
		OracleVendor:             "gemini",
		OracleInterval:           2 * time.Second,
		OracleBurst:              1,
		AggregateMode:            "open",
		AggregateMinIssues:       4,
		AggregateTemperature:     0.3,
		StorageBackend:           "file",
		MongoDatabase:            "news_db",
		MongoCollection:          "articles",
		CorpusFilePath:           "articles.json",
		TranslationCacheTTLHours: 168,
		LogFormat:                "json",
		RequestTimeout:           30 * time.Second,
		RetryAttempts:            3,
		RetryDelay:               5 * time.Second,
		MonitoringPort:           "8080",
		ExportDir:                ".",
	}
}

// Load applies defaults, then the YAML file at path (skipped when empty or
// missing), then the environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.SourceKind = getEnvOrDefault("SOURCE_KIND", c.SourceKind)
	c.NewsAPIKey = getEnvOrDefault("NEWS_API_KEY", c.NewsAPIKey)
	c.NewsBaseURL = getEnvOrDefault("NEWS_BASE_URL", c.NewsBaseURL)
	c.NewsCountry = getEnvOrDefault("NEWS_COUNTRY", c.NewsCountry)
	c.NewsQuery = getEnvOrDefault("NEWS_QUERY", c.NewsQuery)
	c.NewsPageSize = getEnvIntOrDefault("NEWS_PAGE_SIZE", c.NewsPageSize)
	c.NewsTiers = getEnvListOrDefault("NEWS_TIERS", c.NewsTiers)
	c.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", c.FeedsConfigPath)

	c.PriorityThreshold = getEnvIntOrDefault("PRIORITY_THRESHOLD", c.PriorityThreshold)
	c.ScrapeMissingContent = getEnvBoolOrDefault("SCRAPE_MISSING_CONTENT", c.ScrapeMissingContent)

	c.OracleVendor = strings.ToLower(getEnvOrDefault("ORACLE_VENDOR", c.OracleVendor))
	c.OracleModel = getEnvOrDefault("ORACLE_MODEL", c.OracleModel)
	c.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.TogetherAPIKey = getEnvOrDefault("TOGETHER_API_KEY", c.TogetherAPIKey)
	c.CohereAPIKey = getEnvOrDefault("COHERE_API_KEY", c.CohereAPIKey)
	c.OracleInterval = getEnvDurationOrDefault("ORACLE_INTERVAL", c.OracleInterval)
	c.OracleBurst = getEnvIntOrDefault("ORACLE_BURST", c.OracleBurst)
	c.MaxOracleCalls = getEnvIntOrDefault("MAX_ORACLE_CALLS", c.MaxOracleCalls)

	c.AggregateMode = strings.ToLower(getEnvOrDefault("AGGREGATE_MODE", c.AggregateMode))
	c.AggregateMinIssues = getEnvIntOrDefault("AGGREGATE_MIN_ISSUES", c.AggregateMinIssues)
	c.AggregateTemperature = getEnvFloatOrDefault("AGGREGATE_TEMPERATURE", c.AggregateTemperature)

	c.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", c.StorageBackend))
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.MongoURI = getEnvOrDefault("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnvOrDefault("MONGO_DATABASE", c.MongoDatabase)
	c.MongoCollection = getEnvOrDefault("MONGO_COLLECTION", c.MongoCollection)
	c.CorpusFilePath = getEnvOrDefault("CORPUS_FILE_PATH", c.CorpusFilePath)

	c.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", c.RedisPassword)
	c.TranslationCacheTTLHours = getEnvIntOrDefault("TRANSLATION_CACHE_TTL_HOURS", c.TranslationCacheTTLHours)

	c.Debug = getEnvBoolOrDefault("DEBUG", c.Debug)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
	c.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", c.RequestTimeout)
	c.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", c.RetryAttempts)
	c.RetryDelay = getEnvDurationOrDefault("RETRY_DELAY", c.RetryDelay)
	c.MonitoringPort = getEnvOrDefault("MONITORING_PORT", c.MonitoringPort)
	c.ExportDir = getEnvOrDefault("EXPORT_DIR", c.ExportDir)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("2s") or plain seconds ("2").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate checks the settings every command relies on. Keys only some
// commands need are checked by RequireIngest and RequireOracle.
func (c *Config) Validate() error {
	switch c.SourceKind {
	case "newsdata", "rss":
	default:
		return errors.Errorf("SOURCE_KIND must be 'newsdata' or 'rss', got %q", c.SourceKind)
	}

	switch c.StorageBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case "file":
		if c.CorpusFilePath == "" {
			return errors.New("CORPUS_FILE_PATH is required for the file backend")
		}
	default:
		return errors.Errorf("STORAGE_BACKEND must be 'postgres', 'mongo' or 'file', got %q", c.StorageBackend)
	}

	if c.AggregateMode != "open" && c.AggregateMode != "fixed" {
		return errors.Errorf("AGGREGATE_MODE must be 'open' or 'fixed', got %q", c.AggregateMode)
	}
	if c.PriorityThreshold <= 0 {
		return errors.New("PRIORITY_THRESHOLD must be positive")
	}
	if c.OracleInterval < 0 || c.OracleBurst <= 0 {
		return errors.New("ORACLE_INTERVAL must not be negative and ORACLE_BURST must be positive")
	}
	return nil
}

// OracleAPIKey returns the key of the selected vendor.
func (c *Config) OracleAPIKey() string {
	switch c.OracleVendor {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "together":
		return c.TogetherAPIKey
	case "cohere":
		return c.CohereAPIKey
	}
	return ""
}

func (c *Config) RequireOracle() error {
	switch c.OracleVendor {
	case "gemini", "openai", "together", "cohere":
	default:
		return errors.Errorf("ORACLE_VENDOR must be gemini, openai, together or cohere, got %q", c.OracleVendor)
	}
	if c.OracleAPIKey() == "" {
		return errors.Errorf("an API key is required for oracle vendor %q", c.OracleVendor)
	}
	return nil
}

func (c *Config) RequireIngest() error {
	if c.SourceKind == "newsdata" && c.NewsAPIKey == "" {
		return errors.New("NEWS_API_KEY is required")
	}
	if c.SourceKind == "rss" && c.FeedsConfigPath == "" {
		return errors.New("FEEDS_CONFIG_PATH is required for the rss source")
	}
	return c.RequireOracle()
}
