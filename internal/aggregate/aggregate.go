// Package aggregate groups a window of stored articles into issue
// categories with a single oracle call.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/oracle"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	ModeOpen  = "open"
	ModeFixed = "fixed"

	systemPrompt = "You are a factual news summarizer."
)

// FixedCategories is the taxonomy enforced in fixed mode, in report order.
var FixedCategories = []string{
	"Governance",
	"Law & Order",
	"Healthcare",
	"Infrastructure",
	"Education",
	"Environment",
	"Corruption & Politics",
	"Agriculture",
}

var (
	ErrNoArticles   = errors.New("no articles to summarize")
	ErrNoCategories = errors.New("response has no categories key")
)

// InsufficientError reports a fixed-mode answer that missed the taxonomy.
type InsufficientError struct {
	Category string
	Issues   int
	Want     int
}

func (e *InsufficientError) Error() string {
	if e.Issues < 0 {
		return fmt.Sprintf("category %q missing from response", e.Category)
	}
	return fmt.Sprintf("category %q has %d issues, want at least %d", e.Category, e.Issues, e.Want)
}

type Summary struct {
	Categories []news.CategoryBucket `json:"categories"`
}

type Result struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

const DefaultTemperature float32 = 0.3

type Config struct {
	Mode      string
	MinIssues int
	Region    string
	MaxTokens int
	// Temperature is sent as is, zero included. Nil means DefaultTemperature.
	Temperature *float32
}

type Aggregator struct {
	oracle oracle.TextOracle
	cfg    Config
	log    *zap.Logger
}

func New(o oracle.TextOracle, cfg Config, log *zap.Logger) *Aggregator {
	if cfg.Mode == "" {
		cfg.Mode = ModeOpen
	}
	if cfg.MinIssues <= 0 {
		cfg.MinIssues = 4
	}
	if cfg.Region == "" {
		cfg.Region = "Andhra Pradesh"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{oracle: o, cfg: cfg, log: log.With(zap.String("component", "aggregate"))}
}

// Aggregate never returns partial output. In fixed mode an answer that
// misses the taxonomy is asked for once more before giving up.
func (a *Aggregator) Aggregate(ctx context.Context, articles []news.Projection) Result {
	if len(articles) == 0 {
		return errorResult(ErrNoArticles)
	}

	attempts := 1
	if a.cfg.Mode == ModeFixed {
		attempts = 2
	}

	req := oracle.Request{
		System:      systemPrompt,
		Prompt:      a.buildPrompt(articles),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: *a.cfg.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := a.oracle.Generate(ctx, req)
		if err != nil {
			a.log.Error("aggregation call failed", zap.Int("attempt", attempt), zap.Error(err))
			return errorResult(errors.Wrap(err, "aggregate"))
		}

		buckets, err := a.parse(raw)
		if err == nil {
			a.log.Info("aggregated articles", zap.Int("articles", len(articles)), zap.Int("categories", len(buckets)))
			return Result{Status: StatusSuccess, Summary: &Summary{Categories: buckets}}
		}
		lastErr = err
		a.log.Warn("unusable aggregation", zap.Int("attempt", attempt), zap.Error(err))
	}
	return errorResult(lastErr)
}

func (a *Aggregator) parse(raw string) ([]news.CategoryBucket, error) {
	obj, err := oracle.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Categories *[]news.CategoryBucket `json:"categories"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, errors.Wrap(err, "decode categories")
	}
	if payload.Categories == nil {
		return nil, ErrNoCategories
	}

	var buckets []news.CategoryBucket
	for _, b := range *payload.Categories {
		b.Name = strings.TrimSpace(b.Name)
		issues := make([]string, 0, len(b.Issues))
		for _, issue := range b.Issues {
			if issue = strings.TrimSpace(issue); issue != "" {
				issues = append(issues, issue)
			}
		}
		b.Issues = issues
		if b.Name != "" {
			buckets = append(buckets, b)
		}
	}

	if a.cfg.Mode == ModeFixed {
		return a.fixed(buckets)
	}
	if buckets == nil {
		buckets = []news.CategoryBucket{}
	}
	return buckets, nil
}

// fixed keeps the taxonomy categories in their canonical order and checks
// each one has enough issues.
func (a *Aggregator) fixed(buckets []news.CategoryBucket) ([]news.CategoryBucket, error) {
	byName := make(map[string]news.CategoryBucket, len(buckets))
	for _, b := range buckets {
		byName[strings.ToLower(b.Name)] = b
	}

	out := make([]news.CategoryBucket, 0, len(FixedCategories))
	for _, name := range FixedCategories {
		b, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, &InsufficientError{Category: name, Issues: -1, Want: a.cfg.MinIssues}
		}
		if len(b.Issues) < a.cfg.MinIssues {
			return nil, &InsufficientError{Category: name, Issues: len(b.Issues), Want: a.cfg.MinIssues}
		}
		b.Name = name
		out = append(out, b)
	}
	return out, nil
}

func (a *Aggregator) buildPrompt(articles []news.Projection) string {
	var lines strings.Builder
	for _, art := range articles {
		headline := strings.TrimSpace(art.AIHeadline)
		if headline == "" {
			headline = strings.TrimSpace(art.Headline)
		}
		reason := strings.TrimSpace(art.IssueReason)
		if reason == "" {
			reason = "N/A"
		}
		fmt.Fprintf(&lines, "- %s (Issue: %s)\n", headline, reason)
	}

	var task string
	if a.cfg.Mode == ModeFixed {
		task = fmt.Sprintf(`Group them into exactly %d categories: %s.
Each category must list at least %d real issues.`,
			len(FixedCategories), strings.Join(FixedCategories, ", "), a.cfg.MinIssues)
	} else {
		task = "Group them into the categories you find, up to 8, named after the kind of issue (for example Healthcare, Infrastructure)."
	}

	return fmt.Sprintf(`Below is a list of %s news headlines and the public issue each describes:
"""
%s"""
Keep only major public issues related to %s.
%s
Every issue is one or two sentences and names the exact district, city or town.

Return only this JSON, no extra text:
{"categories":[{"category_name":"...","issues":["..."]}]}`,
		a.cfg.Region, lines.String(), a.cfg.Region, task)
}

func errorResult(err error) Result {
	return Result{Status: StatusError, Message: err.Error()}
}
