package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/ratelimit"
	"github.com/deusflow/issuedesk/internal/storage"
)

type fakeSource struct {
	candidates []news.Candidate
	err        error
	tiers      []string
}

func (f *fakeSource) FetchAll(_ context.Context, tiers []string) ([]news.Candidate, error) {
	f.tiers = tiers
	return f.candidates, f.err
}

type fakeClassifier struct {
	calls   []string
	verdict func(c news.Candidate) (*news.Verdict, error)
}

func (f *fakeClassifier) Classify(_ context.Context, c news.Candidate) (*news.Verdict, error) {
	f.calls = append(f.calls, c.ArticleID)
	return f.verdict(c)
}

type trimNormalizer struct{}

func (trimNormalizer) Normalize(_ context.Context, text string) string {
	return strings.TrimSpace(text)
}

type fakeRecorder struct {
	outcomes []string
	status   string
}

func (r *fakeRecorder) Article(outcome string) { r.outcomes = append(r.outcomes, outcome) }
func (r *fakeRecorder) RunFinished(status string, _ time.Duration, _ string) {
	r.status = status
}

func prio(n int) *int { return &n }

func issue(c news.Candidate) (*news.Verdict, error) {
	return &news.Verdict{
		IsIssue:     true,
		Headline:    c.Title,
		AIHeadline:  "Short " + c.ArticleID,
		Explanation: "<b>Guntur</b> affected",
		Department:  "water resources",
	}, nil
}

func TestRunAdmitsByPriority(t *testing.T) {
	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "Canal breach in Guntur", Link: "https://n/a", SourceID: "hindu", PubDate: "2024-05-01 10:00:00", SourcePriority: prio(5000), Category: []string{"top"}},
		{ArticleID: "b", Title: "Minor outlet story", Link: "https://n/b", SourcePriority: prio(40000)},
		{ArticleID: "c", Title: "No priority at all", Link: "https://n/c"},
	}}
	cls := &fakeClassifier{verdict: issue}
	corpus := storage.NewFileCorpus("")
	rec := &fakeRecorder{}

	o := New(Config{}, src, cls, trimNormalizer{}, corpus, nil, WithRecorder(rec))
	sum := o.Run(context.Background())

	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, 1, sum.ArticlesFetched)
	assert.Equal(t, 2, sum.Counters.DroppedPriority)
	assert.Equal(t, []string{"a"}, cls.calls)
	assert.Equal(t, []string{"top", "medium"}, src.tiers)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, StatusSuccess, rec.status)

	n, err := corpus.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := corpus.Recent(context.Background(), 0)
	require.NoError(t, err)
	got := stored[0]
	assert.Equal(t, "Canal breach in Guntur", got.Headline)
	assert.Equal(t, "Water Resources", got.Department)
	assert.Equal(t, 5000, got.SourcePriority)
	assert.Equal(t, "hindu", got.Source)
	assert.Equal(t, []string{"top"}, got.Tags)
	assert.False(t, got.StoredAt.IsZero())
}

func TestRunFetchFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("newsdata tier \"top\" returned status 401")}
	cls := &fakeClassifier{verdict: issue}

	sum := New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil).Run(context.Background())

	assert.Equal(t, StatusError, sum.Status)
	assert.Equal(t, 0, sum.ArticlesFetched)
	assert.Contains(t, sum.Message, "401")
	assert.Empty(t, cls.calls)
}

func TestRunSkipsDuplicatesBeforeClassifying(t *testing.T) {
	corpus := storage.NewFileCorpus("")
	require.NoError(t, corpus.Insert(context.Background(), news.StoredArticle{
		ArticleID: "old", Headline: "Old headline", URL: "https://n/old",
	}))

	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "old", Title: "Anything", Link: "https://n/x", SourcePriority: prio(1)},
		{ArticleID: "new", Title: "Old headline", Link: "https://n/y", SourcePriority: prio(1)},
		{ArticleID: "new2", Title: "Fresh", Link: "https://n/old", SourcePriority: prio(1)},
		{Title: "No id", Link: "https://n/z", SourcePriority: prio(1)},
	}}
	cls := &fakeClassifier{verdict: issue}

	sum := New(Config{}, src, cls, trimNormalizer{}, corpus, nil).Run(context.Background())

	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, 4, sum.Counters.Duplicates)
	assert.Empty(t, cls.calls)
}

func TestRunCatchesRepublishedStoryWithRewrittenHeadline(t *testing.T) {
	rewrites := 0
	cls := &fakeClassifier{verdict: func(c news.Candidate) (*news.Verdict, error) {
		rewrites++
		return &news.Verdict{
			IsIssue:    true,
			Headline:   strings.Repeat("Rewritten ", rewrites) + c.Title,
			Department: "Water Resources",
		}, nil
	}}
	corpus := storage.NewFileCorpus("")

	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "Canal breach in Guntur", Link: "https://n/a", SourcePriority: prio(10)},
		{ArticleID: "b", Title: "Canal breach in Guntur", Link: "https://mirror/b", SourcePriority: prio(10)},
	}}
	sum := New(Config{}, src, cls, trimNormalizer{}, corpus, nil).Run(context.Background())
	assert.Equal(t, 1, sum.ArticlesFetched)
	assert.Equal(t, 1, sum.Counters.Duplicates)
	assert.Equal(t, []string{"a"}, cls.calls)

	// A later run sees the stored feed title through the corpus.
	src = &fakeSource{candidates: []news.Candidate{
		{ArticleID: "c", Title: "Canal breach in Guntur", Link: "https://third/c", SourcePriority: prio(10)},
	}}
	sum = New(Config{}, src, cls, trimNormalizer{}, corpus, nil).Run(context.Background())
	assert.Equal(t, 0, sum.ArticlesFetched)
	assert.Equal(t, 1, sum.Counters.Duplicates)
	assert.Equal(t, []string{"a"}, cls.calls)

	n, err := corpus.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRunCountsInsertCollisionAsSkip(t *testing.T) {
	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "Floods in Guntur", Link: "https://n/a", SourcePriority: prio(10)},
		{ArticleID: "b", Title: "Guntur floods", Link: "https://n/b", SourcePriority: prio(10)},
	}}
	cls := &fakeClassifier{verdict: func(c news.Candidate) (*news.Verdict, error) {
		return &news.Verdict{IsIssue: true, Headline: "Floods hit Guntur"}, nil
	}}

	sum := New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil).Run(context.Background())

	assert.Equal(t, 1, sum.ArticlesFetched)
	assert.Equal(t, 1, sum.Counters.SkippedOnInsert)
	assert.Len(t, cls.calls, 2)
}

func TestRunContinuesPastClassifierFailures(t *testing.T) {
	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "One", Link: "https://n/a", SourcePriority: prio(10)},
		{ArticleID: "b", Title: "Two", Link: "https://n/b", SourcePriority: prio(10)},
		{ArticleID: "c", Title: "Three", Link: "https://n/c", SourcePriority: prio(10)},
	}}
	cls := &fakeClassifier{verdict: func(c news.Candidate) (*news.Verdict, error) {
		switch c.ArticleID {
		case "a":
			return nil, errors.New("no JSON object in response")
		case "b":
			return nil, nil
		}
		return issue(c)
	}}

	sum := New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil).Run(context.Background())

	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, 1, sum.ArticlesFetched)
	assert.Equal(t, 1, sum.Counters.Failed)
	assert.Equal(t, 1, sum.Counters.NotIssue)
}

func TestRunStopsWhenBudgetIsSpent(t *testing.T) {
	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "One", Link: "https://n/a", SourcePriority: prio(10)},
		{ArticleID: "b", Title: "Two", Link: "https://n/b", SourcePriority: prio(10)},
	}}
	cls := &fakeClassifier{verdict: func(news.Candidate) (*news.Verdict, error) {
		return nil, errors.Wrap(ratelimit.ErrBudgetExhausted, "acquire oracle slot")
	}}

	sum := New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil).Run(context.Background())

	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, "oracle call budget exhausted", sum.Message)
	assert.Len(t, cls.calls, 1)
}

func TestRunCancelledKeepsStoredCount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "One", Link: "https://n/a", SourcePriority: prio(10)},
		{ArticleID: "b", Title: "Two", Link: "https://n/b", SourcePriority: prio(10)},
	}}
	cls := &fakeClassifier{verdict: func(c news.Candidate) (*news.Verdict, error) {
		cancel()
		return issue(c)
	}}

	sum := New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil).Run(ctx)

	assert.Equal(t, StatusError, sum.Status)
	assert.Equal(t, 1, sum.ArticlesFetched)
	assert.Len(t, cls.calls, 1)
}

type enrichFunc func(*news.Candidate)

func (f enrichFunc) Enrich(_ context.Context, c *news.Candidate) error {
	f(c)
	return nil
}

func TestRunEnrichesBeforeClassifying(t *testing.T) {
	src := &fakeSource{candidates: []news.Candidate{
		{ArticleID: "a", Title: "One", Link: "https://n/a", Content: "ONLY AVAILABLE IN PAID PLANS", SourcePriority: prio(10)},
	}}
	var seen string
	cls := &fakeClassifier{verdict: func(c news.Candidate) (*news.Verdict, error) {
		seen = c.Content
		return nil, nil
	}}

	New(Config{}, src, cls, trimNormalizer{}, storage.NewFileCorpus(""), nil,
		WithEnricher(enrichFunc(func(c *news.Candidate) { c.Content = "scraped body" })),
	).Run(context.Background())

	assert.Equal(t, "scraped body", seen)
}
