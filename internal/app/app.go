// Package app wires the pipeline together and exposes the operations the
// CLI runs.
package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/aggregate"
	"github.com/deusflow/issuedesk/internal/classifier"
	"github.com/deusflow/issuedesk/internal/config"
	"github.com/deusflow/issuedesk/internal/ingest"
	"github.com/deusflow/issuedesk/internal/metrics"
	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/oracle"
	"github.com/deusflow/issuedesk/internal/scraper"
	"github.com/deusflow/issuedesk/internal/storage"
)

const exportLayout = "20060102_150405"

// Deps are the collaborators of an App. Oracle and Source may be nil, in
// which case only the read operations work.
type Deps struct {
	Corpus     storage.Corpus
	Oracle     oracle.TextOracle
	Source     ingest.Source
	Normalizer ingest.Normalizer
	Enricher   ingest.Enricher
	Metrics    *metrics.Metrics
	Closers    []func() error
}

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	deps    Deps
	ingest  *ingest.Orchestrator
	summary *aggregate.Aggregator
	oracErr error
	now     func() time.Time
}

// New connects every backend named by cfg. The oracle is optional: when it
// cannot be built the read operations still work and the error is reported
// by FetchAndStore and Summarize.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *zap.Logger) (*App, error) {
	corpus, err := OpenCorpus(ctx, cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "open corpus")
	}

	store := openCache(ctx, cfg, log)
	deps := Deps{
		Corpus:     corpus,
		Normalizer: newNormalizer(cfg, store, log),
		Metrics:    metrics.New(reg),
		Closers:    []func() error{store.Close},
	}
	if cfg.ScrapeMissingContent {
		deps.Enricher = scraper.New(cfg.RequestTimeout, log)
	}

	oracErr := cfg.RequireOracle()
	if oracErr == nil {
		o, err := newOracle(ctx, cfg, deps.Metrics.OracleCall, log)
		if err != nil {
			oracErr = err
		} else {
			deps.Oracle = o
			deps.Closers = append(deps.Closers, o.Close)
		}
	}
	if oracErr != nil {
		log.Warn("oracle unavailable, only read operations will work", zap.Error(oracErr))
	}

	if src, err := newSource(cfg, log); err != nil {
		log.Warn("source unavailable", zap.Error(err))
	} else {
		deps.Source = src
	}

	a := Assemble(cfg, deps, log)
	if oracErr != nil {
		a.oracErr = oracErr
	}
	return a, nil
}

// Assemble builds an App from ready collaborators.
func Assemble(cfg *config.Config, deps Deps, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	a := &App{cfg: cfg, log: log, deps: deps, now: time.Now}

	if deps.Oracle == nil {
		a.oracErr = errors.New("no text oracle configured")
		return a
	}

	temperature := cfg.AggregateTemperature
	a.summary = aggregate.New(deps.Oracle, aggregate.Config{
		Mode:        cfg.AggregateMode,
		MinIssues:   cfg.AggregateMinIssues,
		Region:      cfg.NewsQuery,
		Temperature: &temperature,
	}, log)

	if deps.Source != nil {
		opts := []ingest.Option{ingest.WithRecorder(deps.Metrics)}
		if deps.Enricher != nil {
			opts = append(opts, ingest.WithEnricher(deps.Enricher))
		}
		cls := classifier.New(deps.Oracle, classifier.Config{Region: cfg.NewsQuery}, log)
		a.ingest = ingest.New(ingest.Config{
			Tiers:             cfg.NewsTiers,
			PriorityThreshold: cfg.PriorityThreshold,
		}, deps.Source, cls, deps.Normalizer, deps.Corpus, log, opts...)
	}
	return a
}

func (a *App) Metrics() *metrics.Metrics { return a.deps.Metrics }

// FetchAndStore runs one ingestion pass.
func (a *App) FetchAndStore(ctx context.Context) ingest.Summary {
	if a.ingest == nil {
		err := a.oracErr
		if err == nil {
			err = errors.New("no article source configured")
		}
		return ingest.Summary{Status: ingest.StatusError, Message: err.Error()}
	}
	return a.ingest.Run(ctx)
}

// Articles returns the stored articles published in the window for date
// (YYYY-MM-DD, or the last 24 hours when empty), newest first.
func (a *App) Articles(ctx context.Context, date string) ([]news.Projection, error) {
	from, to, err := storage.Window(date, a.now())
	if err != nil {
		return nil, err
	}

	stored, err := a.deps.Corpus.PublishedBetween(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query articles")
	}

	out := make([]news.Projection, 0, len(stored))
	for _, s := range stored {
		out = append(out, s.Projection())
	}
	a.log.Debug("retrieved articles", zap.String("from", from), zap.String("to", to), zap.Int("count", len(out)))
	return out, nil
}

func (a *App) Summarize(ctx context.Context, date string) aggregate.Result {
	articles, err := a.Articles(ctx, date)
	if err != nil {
		return aggregate.Result{Status: aggregate.StatusError, Message: err.Error()}
	}
	if a.summary == nil {
		return aggregate.Result{Status: aggregate.StatusError, Message: a.oracErr.Error()}
	}
	return a.summary.Aggregate(ctx, articles)
}

type exportFile struct {
	Count    int                  `json:"count"`
	Articles []news.StoredArticle `json:"articles"`
}

// Export writes every stored article, newest first and without the issue
// explanation, to a timestamped JSON file in dir and returns its path.
func (a *App) Export(ctx context.Context, dir string) (string, error) {
	stored, err := a.deps.Corpus.Recent(ctx, 0)
	if err != nil {
		return "", errors.Wrap(err, "list articles")
	}
	for i := range stored {
		stored[i].Explanation = ""
	}

	data, err := json.MarshalIndent(exportFile{Count: len(stored), Articles: stored}, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode export")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export dir")
	}
	path := filepath.Join(dir, "all_articles_"+a.now().Format(exportLayout)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write export")
	}

	a.log.Info("exported articles", zap.String("path", path), zap.Int("count", len(stored)))
	return path, nil
}

type CheckReport struct {
	Backend string               `json:"backend"`
	Count   int64                `json:"count"`
	Recent  []news.StoredArticle `json:"recent"`
}

// Check confirms the corpus answers and reports what it holds.
func (a *App) Check(ctx context.Context) (*CheckReport, error) {
	count, err := a.deps.Corpus.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count articles")
	}
	recent, err := a.deps.Corpus.Recent(ctx, 5)
	if err != nil {
		return nil, errors.Wrap(err, "list recent articles")
	}
	return &CheckReport{Backend: a.cfg.StorageBackend, Count: count, Recent: recent}, nil
}

// Close releases the corpus and every client opened by New.
func (a *App) Close() error {
	var first error
	for _, c := range a.deps.Closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	if err := a.deps.Corpus.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
