package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/deusflow/issuedesk/internal/news"
)

func article(id, headline, url, published string, stored time.Time) news.StoredArticle {
	return news.StoredArticle{
		ArticleID:     id,
		Headline:      headline,
		URL:           url,
		PublishedDate: published,
		Department:    news.UnknownDepartment,
		StoredAt:      stored,
	}
}

func TestWindowForDate(t *testing.T) {
	from, to, err := Window("2024-05-01", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 00:00:00", from)
	assert.Equal(t, "2024-05-02 00:00:00", to)

	from, to, err = Window("2024-12-31", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31 00:00:00", from)
	assert.Equal(t, "2025-01-01 00:00:00", to)
}

func TestWindowDefaultsToLastDay(t *testing.T) {
	now := time.Date(2024, 5, 2, 15, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	from, to, err := Window("", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 10:00:00", from)
	assert.Equal(t, "2024-05-02 10:00:00", to)
}

func TestWindowRejectsBadDate(t *testing.T) {
	_, _, err := Window("01-05-2024", time.Now())
	assert.Error(t, err)
}

func TestFileCorpusUniqueness(t *testing.T) {
	ctx := context.Background()
	c := NewFileCorpus("")
	now := time.Now()

	require.NoError(t, c.Insert(ctx, article("1", "Floods in Guntur", "https://x/1", "2024-05-01 10:00:00", now)))

	for _, dup := range []news.StoredArticle{
		article("1", "Other", "https://x/2", "", now),
		article("2", "Floods in Guntur", "https://x/3", "", now),
		article("3", "Another", "https://x/1", "", now),
	} {
		assert.ErrorIs(t, c.Insert(ctx, dup), ErrDuplicate)
	}

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ok, _ := c.HasArticleID(ctx, "1")
	assert.True(t, ok)
	ok, _ = c.HasURL(ctx, "https://x/1")
	assert.True(t, ok)
	ok, _ = c.HasURL(ctx, "https://x/9")
	assert.False(t, ok)

	hs, _ := c.Headlines(ctx)
	assert.Equal(t, []string{"Floods in Guntur"}, hs)
}

func TestFileCorpusHeadlinesIncludeSourceTitles(t *testing.T) {
	ctx := context.Background()
	c := NewFileCorpus("")

	a := article("1", "Canal breach floods Guntur villages", "https://x/1", "", time.Now())
	a.SourceTitle = "Canal breach in Guntur"
	require.NoError(t, c.Insert(ctx, a))

	b := article("2", "Same title", "https://x/2", "", time.Now())
	b.SourceTitle = "Same title"
	require.NoError(t, c.Insert(ctx, b))

	hs, err := c.Headlines(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Canal breach floods Guntur villages", "Canal breach in Guntur", "Same title"}, hs)
}

func TestFileCorpusWindowAndRecent(t *testing.T) {
	ctx := context.Background()
	c := NewFileCorpus("")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Insert(ctx, article("a", "A", "u/a", "2024-04-30 23:59:59", base.Add(3*time.Hour))))
	require.NoError(t, c.Insert(ctx, article("b", "B", "u/b", "2024-05-01 08:00:00", base.Add(1*time.Hour))))
	require.NoError(t, c.Insert(ctx, article("c", "C", "u/c", "2024-05-01 21:15:00", base.Add(2*time.Hour))))
	require.NoError(t, c.Insert(ctx, article("d", "D", "u/d", "2024-05-02 00:00:00", base)))

	got, err := c.PublishedBetween(ctx, "2024-05-01 00:00:00", "2024-05-02 00:00:00")
	require.NoError(t, err)
	var ids []string
	for _, a := range got {
		ids = append(ids, a.ArticleID)
	}
	assert.Equal(t, []string{"d", "c", "b"}, ids)

	recent, err := c.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a", recent[0].ArticleID)
	assert.Equal(t, "c", recent[1].ArticleID)

	all, _ := c.Recent(ctx, 0)
	assert.Len(t, all, 4)
}

func TestFileCorpusPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "corpus.json")

	c := NewFileCorpus(path)
	require.NoError(t, c.Load())
	require.NoError(t, c.Insert(ctx, article("1", "H", "u", "2024-05-01 10:00:00", time.Now().UTC())))
	require.NoError(t, c.Close())

	reloaded := NewFileCorpus(path)
	require.NoError(t, reloaded.Load())
	n, _ := reloaded.Count(ctx)
	assert.EqualValues(t, 1, n)
	assert.ErrorIs(t, reloaded.Insert(ctx, article("1", "H2", "u2", "", time.Now())), ErrDuplicate)
}

func TestPostgresQueries(t *testing.T) {
	q, args, err := windowQuery("2024-05-01 00:00:00", "2024-05-02 00:00:00").ToSql()
	require.NoError(t, err)
	assert.Contains(t, q, "FROM articles WHERE published_date >= $1 AND published_date <= $2 ORDER BY published_date DESC")
	assert.Equal(t, []interface{}{"2024-05-01 00:00:00", "2024-05-02 00:00:00"}, args)

	q, args, err = existsQuery("url", "https://x").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM articles WHERE url = $1 LIMIT 1", q)
	assert.Equal(t, []interface{}{"https://x"}, args)

	q, _, err = recentQuery(5).ToSql()
	require.NoError(t, err)
	assert.Contains(t, q, "ORDER BY stored_at DESC LIMIT 5")

	q, _, err = recentQuery(0).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, q, "LIMIT")

	q, args, err = insertQuery(article("1", "H", "u", "p", time.Now())).ToSql()
	require.NoError(t, err)
	assert.Contains(t, q, "INSERT INTO articles (article_id,headline,")
	assert.Contains(t, q, "$15")
	assert.Len(t, args, len(articleColumns))
}

func TestUniqueViolationDetection(t *testing.T) {
	err := errors.Wrap(&pq.Error{Code: "23505", Constraint: "articles_url_key"}, "exec")
	constraint, ok := uniqueViolationOn(err)
	assert.True(t, ok)
	assert.Equal(t, "articles_url_key", constraint)

	_, ok = uniqueViolationOn(&pq.Error{Code: "23503"})
	assert.False(t, ok)
	_, ok = uniqueViolationOn(errors.New("conn reset"))
	assert.False(t, ok)
}

func TestMongoFilterAndIndexes(t *testing.T) {
	f := windowFilter("a", "b")
	assert.Equal(t, bson.M{"published_date": bson.M{"$gte": "a", "$lte": "b"}}, f)

	models := indexModels()
	require.Len(t, models, 5)
	for _, m := range models[:3] {
		require.NotNil(t, m.Options)
		require.NotNil(t, m.Options.Unique)
		assert.True(t, *m.Options.Unique)
	}
}
