package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/storage"
)

func seededCorpus(t *testing.T) *storage.FileCorpus {
	t.Helper()
	c := storage.NewFileCorpus("")
	require.NoError(t, c.Insert(context.Background(), news.StoredArticle{
		ArticleID: "stored-1",
		Headline:  "Farmers protest in Guntur",
		URL:       "https://news.example/guntur",
		StoredAt:  time.Now(),
	}))
	return c
}

func TestGateRejectsEachCollision(t *testing.T) {
	ctx := context.Background()
	g := NewGate(seededCorpus(t))
	require.NoError(t, g.Preload(ctx))

	tests := []struct {
		name   string
		cand   news.Candidate
		reason Reason
	}{
		{"id collision", news.Candidate{ArticleID: "stored-1", Title: "Fresh title", Link: "https://news.example/fresh"}, StoredID},
		{"headline collision", news.Candidate{ArticleID: "new-2", Title: " Farmers protest   in Guntur ", Link: "https://news.example/other"}, StoredHeadline},
		{"url collision", news.Candidate{ArticleID: "new-3", Title: "Different words", Link: "https://news.example/guntur"}, StoredURL},
		{"missing id", news.Candidate{Title: "No id"}, MissingID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, reason, err := g.IsDuplicate(ctx, tt.cand)
			require.NoError(t, err)
			assert.True(t, dup)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestGateAdvancesSeenIDs(t *testing.T) {
	ctx := context.Background()
	g := NewGate(seededCorpus(t))

	cand := news.Candidate{ArticleID: "x1", Title: "Road caves in at Vizag", Link: "https://news.example/vizag"}
	dup, _, err := g.IsDuplicate(ctx, cand)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, reason, err := g.IsDuplicate(ctx, cand)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, SeenInBatch, reason)
}

func TestGateRemembersStoredArticles(t *testing.T) {
	ctx := context.Background()
	g := NewGate(storage.NewFileCorpus(""))

	g.Remember(news.StoredArticle{ArticleID: "a", Headline: "Power cuts in Nellore", URL: "https://n/1"})

	dup, reason, err := g.IsDuplicate(ctx, news.Candidate{ArticleID: "b", Title: "Power cuts in Nellore", Link: "https://n/2"})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, StoredHeadline, reason)

	dup, reason, err = g.IsDuplicate(ctx, news.Candidate{ArticleID: "c", Title: "Other", Link: "https://n/1"})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, StoredURL, reason)
}

func TestGateRemembersSourceTitle(t *testing.T) {
	ctx := context.Background()
	g := NewGate(storage.NewFileCorpus(""))

	g.Remember(news.StoredArticle{
		ArticleID:   "a",
		Headline:    "Canal breach floods Guntur villages",
		SourceTitle: "Canal breach in Guntur",
		URL:         "https://n/1",
	})

	dup, reason, err := g.IsDuplicate(ctx, news.Candidate{ArticleID: "b", Title: "Canal breach in  Guntur", Link: "https://other/2"})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, StoredHeadline, reason)
}

type brokenLookup struct{}

func (brokenLookup) HasArticleID(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}
func (brokenLookup) HasURL(context.Context, string) (bool, error) { return false, nil }
func (brokenLookup) Headlines(context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func TestGateSurfacesLookupErrors(t *testing.T) {
	g := NewGate(brokenLookup{})
	assert.Error(t, g.Preload(context.Background()))

	_, _, err := g.IsDuplicate(context.Background(), news.Candidate{ArticleID: "z"})
	assert.Error(t, err)
}
