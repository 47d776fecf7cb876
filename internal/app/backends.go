package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/cache"
	"github.com/deusflow/issuedesk/internal/config"
	"github.com/deusflow/issuedesk/internal/ingest"
	"github.com/deusflow/issuedesk/internal/newsdata"
	"github.com/deusflow/issuedesk/internal/normalize"
	"github.com/deusflow/issuedesk/internal/oracle"
	"github.com/deusflow/issuedesk/internal/ratelimit"
	"github.com/deusflow/issuedesk/internal/retry"
	"github.com/deusflow/issuedesk/internal/rss"
	"github.com/deusflow/issuedesk/internal/storage"
	"github.com/deusflow/issuedesk/internal/translate"
)

// OpenCorpus connects the configured storage backend.
func OpenCorpus(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Corpus, error) {
	switch cfg.StorageBackend {
	case "postgres":
		return storage.NewPostgres(ctx, cfg.DatabaseURL, log)
	case "mongo":
		return storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, log)
	case "file":
		fc := storage.NewFileCorpus(cfg.CorpusFilePath)
		if err := fc.Load(); err != nil {
			return nil, err
		}
		log.Info("using file corpus", zap.String("path", cfg.CorpusFilePath))
		return fc, nil
	}
	return nil, errors.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// openCache prefers Redis and falls back to memory when Redis is not
// configured or not reachable.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) cache.Store {
	if cfg.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
		if err == nil {
			log.Info("using redis translation cache", zap.String("addr", cfg.RedisAddr))
			return r
		}
		log.Warn("redis unavailable, using memory cache", zap.Error(err))
	}
	return cache.NewMemory()
}

func newNormalizer(cfg *config.Config, store cache.Store, log *zap.Logger) *normalize.Normalizer {
	tr := translate.New(translate.Config{
		OpenAIKey: cfg.OpenAIAPIKey,
		OpenAIURL: cfg.OpenAIBaseURL,
		Timeout:   cfg.RequestTimeout,
		CacheTTL:  time.Duration(cfg.TranslationCacheTTLHours) * time.Hour,
	}, store, log)
	return normalize.New(normalize.NewEnglishDetector(), tr, log)
}

func newSource(cfg *config.Config, log *zap.Logger) (ingest.Source, error) {
	if cfg.SourceKind == "rss" {
		feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
		if err != nil {
			return nil, err
		}
		return rss.NewSource(feeds, log), nil
	}

	return newsdata.NewClient(newsdata.Config{
		BaseURL:         cfg.NewsBaseURL,
		APIKey:          cfg.NewsAPIKey,
		Country:         cfg.NewsCountry,
		Query:           cfg.NewsQuery,
		Size:            cfg.NewsPageSize,
		RemoveDuplicate: true,
		DedupByID:       true,
		Timeout:         cfg.RequestTimeout,
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
			Backoff:     true,
		},
	}, log), nil
}

// newOracle builds the vendor client behind the shared limiter.
func newOracle(ctx context.Context, cfg *config.Config, observe oracle.Observer, log *zap.Logger) (*oracle.Limited, error) {
	baseURL := ""
	if cfg.OracleVendor == oracle.VendorOpenAI {
		baseURL = cfg.OpenAIBaseURL
	}
	o, err := oracle.New(ctx, oracle.Config{
		Vendor:  cfg.OracleVendor,
		Model:   cfg.OracleModel,
		APIKey:  cfg.OracleAPIKey(),
		BaseURL: baseURL,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		Interval: cfg.OracleInterval,
		Burst:    cfg.OracleBurst,
		MaxCalls: cfg.MaxOracleCalls,
	}, log)
	log.Info("oracle ready", zap.String("vendor", o.Name()), zap.Duration("interval", cfg.OracleInterval))
	return oracle.NewLimited(o, limiter, cfg.RequestTimeout, observe), nil
}
