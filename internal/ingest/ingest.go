// Package ingest runs one fetch, filter, classify and store pass over the
// news feed.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/dedup"
	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/normalize"
	"github.com/deusflow/issuedesk/internal/ratelimit"
	"github.com/deusflow/issuedesk/internal/storage"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	DefaultPriorityThreshold = 30000
)

// Candidate outcomes, also used as metric labels.
const (
	OutcomeStored          = "stored"
	OutcomeDroppedPriority = "dropped_priority"
	OutcomeDuplicate       = "duplicate"
	OutcomeNotIssue        = "not_issue"
	OutcomeFailed          = "failed"
	OutcomeSkippedOnInsert = "skipped_on_insert"
)

type Source interface {
	FetchAll(ctx context.Context, tiers []string) ([]news.Candidate, error)
}

type Classifier interface {
	Classify(ctx context.Context, c news.Candidate) (*news.Verdict, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, text string) string
}

type Enricher interface {
	Enrich(ctx context.Context, c *news.Candidate) error
}

type Corpus interface {
	dedup.Lookup
	Insert(ctx context.Context, a news.StoredArticle) error
}

type Recorder interface {
	Article(outcome string)
	RunFinished(status string, took time.Duration, runErr string)
}

type Config struct {
	Tiers             []string
	PriorityThreshold int
}

type Counters struct {
	Candidates      int `json:"candidates"`
	DroppedPriority int `json:"dropped_priority"`
	Duplicates      int `json:"duplicates"`
	NotIssue        int `json:"not_issue"`
	Failed          int `json:"failed"`
	SkippedOnInsert int `json:"skipped_on_insert"`
}

// Summary is the outcome of one run. ArticlesFetched counts stored articles.
type Summary struct {
	Status          string   `json:"status"`
	ArticlesFetched int      `json:"articles_fetched"`
	Message         string   `json:"message,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
	Counters        Counters `json:"counters"`
}

type Orchestrator struct {
	cfg        Config
	source     Source
	classifier Classifier
	normalizer Normalizer
	corpus     Corpus
	enricher   Enricher
	recorder   Recorder
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithEnricher(e Enricher) Option { return func(o *Orchestrator) { o.enricher = e } }

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func New(cfg Config, src Source, cls Classifier, norm Normalizer, corpus Corpus, log *zap.Logger, opts ...Option) *Orchestrator {
	if cfg.PriorityThreshold <= 0 {
		cfg.PriorityThreshold = DefaultPriorityThreshold
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = []string{"top", "medium"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:        cfg,
		source:     src,
		classifier: cls,
		normalizer: norm,
		corpus:     corpus,
		log:        log.With(zap.String("component", "ingest")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Admit applies the source priority rule: lower numbers are more prominent
// outlets, and a missing priority is never admitted.
func (o *Orchestrator) Admit(c news.Candidate) bool {
	return c.SourcePriority != nil && *c.SourcePriority <= o.cfg.PriorityThreshold
}

// Run never returns an error; failures end up in the summary.
func (o *Orchestrator) Run(ctx context.Context) Summary {
	start := o.now()
	sum := Summary{RunID: uuid.NewString()}
	log := o.log.With(zap.String("run_id", sum.RunID))

	sum = o.run(ctx, log, sum)

	if o.recorder != nil {
		errMsg := ""
		if sum.Status == StatusError {
			errMsg = sum.Message
		}
		o.recorder.RunFinished(sum.Status, o.now().Sub(start), errMsg)
	}
	log.Info("ingestion finished",
		zap.String("status", sum.Status),
		zap.Int("stored", sum.ArticlesFetched),
		zap.Int("candidates", sum.Counters.Candidates),
		zap.Int("duplicates", sum.Counters.Duplicates),
		zap.Int("dropped_priority", sum.Counters.DroppedPriority),
		zap.Int("not_issue", sum.Counters.NotIssue),
		zap.Int("failed", sum.Counters.Failed),
	)
	return sum
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, sum Summary) Summary {
	candidates, err := o.source.FetchAll(ctx, o.cfg.Tiers)
	if err != nil {
		log.Error("fetch failed", zap.Error(err))
		return fail(sum, errors.Wrap(err, "fetch articles"))
	}
	log.Info("fetched candidates", zap.Int("count", len(candidates)))

	gate := dedup.NewGate(o.corpus)
	if err := gate.Preload(ctx); err != nil {
		log.Error("preload failed", zap.Error(err))
		return fail(sum, err)
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", zap.Int("stored", sum.ArticlesFetched))
			return fail(sum, errors.Wrap(err, "ingestion interrupted"))
		}
		sum.Counters.Candidates++

		outcome, err := o.process(ctx, log, gate, &candidates[i])
		o.record(outcome)
		switch outcome {
		case OutcomeStored:
			sum.ArticlesFetched++
		case OutcomeDroppedPriority:
			sum.Counters.DroppedPriority++
		case OutcomeDuplicate:
			sum.Counters.Duplicates++
		case OutcomeNotIssue:
			sum.Counters.NotIssue++
		case OutcomeSkippedOnInsert:
			sum.Counters.SkippedOnInsert++
		case OutcomeFailed:
			sum.Counters.Failed++
		}

		if errors.Is(err, ratelimit.ErrBudgetExhausted) {
			log.Warn("oracle budget exhausted, stopping early", zap.Int("remaining", len(candidates)-i-1))
			sum.Message = "oracle call budget exhausted"
			break
		}
	}

	sum.Status = StatusSuccess
	return sum
}

func (o *Orchestrator) process(ctx context.Context, log *zap.Logger, gate *dedup.Gate, c *news.Candidate) (string, error) {
	log = log.With(zap.String("article_id", c.ArticleID))

	if !o.Admit(*c) {
		return OutcomeDroppedPriority, nil
	}

	dup, reason, err := gate.IsDuplicate(ctx, *c)
	if err != nil {
		log.Error("dedup lookup failed", zap.Error(err))
		return OutcomeFailed, err
	}
	if dup {
		log.Debug("duplicate", zap.String("reason", string(reason)))
		return OutcomeDuplicate, nil
	}

	if o.enricher != nil {
		if err := o.enricher.Enrich(ctx, c); err != nil {
			log.Debug("enrichment skipped", zap.Error(err))
		}
	}

	verdict, err := o.classifier.Classify(ctx, *c)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		return OutcomeFailed, err
	}
	if verdict == nil {
		return OutcomeNotIssue, nil
	}

	article := o.build(ctx, *c, verdict)
	if err := o.corpus.Insert(ctx, article); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			log.Debug("already stored", zap.String("headline", article.Headline))
			return OutcomeSkippedOnInsert, nil
		}
		log.Error("insert failed", zap.Error(err))
		return OutcomeFailed, err
	}
	gate.Remember(article)

	log.Info("stored article", zap.String("headline", article.Headline), zap.String("department", article.Department))
	return OutcomeStored, nil
}

func (o *Orchestrator) build(ctx context.Context, c news.Candidate, v *news.Verdict) news.StoredArticle {
	return news.StoredArticle{
		ArticleID:      c.ArticleID,
		Headline:       o.normalizer.Normalize(ctx, firstNonEmpty(v.Headline, c.Title)),
		AIHeadline:     normalize.Clean(v.AIHeadline),
		Description:    o.normalizer.Normalize(ctx, firstNonEmpty(v.Description, c.Description)),
		Content:        o.normalizer.Normalize(ctx, firstNonEmpty(v.Content, c.Content)),
		Explanation:    normalize.Clean(v.Explanation),
		Department:     news.ClampDepartment(v.Department),
		Source:         normalize.Clean(c.SourceID),
		URL:            normalize.Clean(c.Link),
		PublishedDate:  normalize.Clean(c.PubDate),
		SourcePriority: *c.SourcePriority,
		Tags:           c.Category,
		Keywords:       c.Keywords,
		StoredAt:       o.now().UTC(),
		SourceTitle:    normalize.Clean(c.Title),
	}
}

func (o *Orchestrator) record(outcome string) {
	if o.recorder != nil {
		o.recorder.Article(outcome)
	}
}

func fail(sum Summary, err error) Summary {
	sum.Status = StatusError
	sum.Message = err.Error()
	return sum
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
