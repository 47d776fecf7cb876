package storage

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
)

const uniqueViolation = "23505"

var articleColumns = []string{
	"article_id", "headline", "ai_headline", "description", "content", "issue_reason",
	"department", "source", "url", "published_date", "source_priority", "tags", "keywords", "stored_at",
	"source_title",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres is the corpus in a PostgreSQL table with three UNIQUE columns.
type Postgres struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPostgres(ctx context.Context, connectionString string, log *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if log == nil {
		log = zap.NewNop()
	}

	pg := &Postgres{db: db, log: log.With(zap.String("component", "postgres"))}
	if err := pg.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	pg.log.Info("postgres corpus connected")
	return pg, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		article_id TEXT NOT NULL UNIQUE,
		headline TEXT NOT NULL UNIQUE,
		ai_headline TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		issue_reason TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT 'Unknown',
		source TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL UNIQUE,
		published_date TEXT NOT NULL DEFAULT '',
		source_priority INTEGER NOT NULL DEFAULT 0,
		tags TEXT[] NOT NULL DEFAULT '{}',
		keywords TEXT[] NOT NULL DEFAULT '{}',
		stored_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source_title TEXT NOT NULL DEFAULT ''
	);

	ALTER TABLE articles ADD COLUMN IF NOT EXISTS source_title TEXT NOT NULL DEFAULT '';

	CREATE INDEX IF NOT EXISTS idx_articles_published_date ON articles(published_date);
	CREATE INDEX IF NOT EXISTS idx_articles_stored_at ON articles(stored_at);
	`

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}
	return nil
}

func (p *Postgres) exists(ctx context.Context, column, value string) (bool, error) {
	query, args, err := existsQuery(column, value).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build exists query")
	}

	var one int
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "lookup by %s", column)
	}
	return true, nil
}

func existsQuery(column, value string) sq.SelectBuilder {
	return psql.Select("1").From("articles").Where(sq.Eq{column: value}).Limit(1)
}

func (p *Postgres) HasArticleID(ctx context.Context, id string) (bool, error) {
	return p.exists(ctx, "article_id", id)
}

func (p *Postgres) HasURL(ctx context.Context, url string) (bool, error) {
	return p.exists(ctx, "url", url)
}

// headlinesQuery lists stored headlines together with the feed titles they
// were written from.
const headlinesQuery = `SELECT headline FROM articles
	UNION SELECT source_title FROM articles WHERE source_title <> ''`

func (p *Postgres) Headlines(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, headlinesQuery)
	if err != nil {
		return nil, errors.Wrap(err, "load headlines")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, errors.Wrap(err, "scan headline")
		}
		out = append(out, h)
	}
	return out, errors.Wrap(rows.Err(), "iterate headlines")
}

func insertQuery(a news.StoredArticle) sq.InsertBuilder {
	return psql.Insert("articles").Columns(articleColumns...).Values(
		a.ArticleID, a.Headline, a.AIHeadline, a.Description, a.Content, a.Explanation,
		a.Department, a.Source, a.URL, a.PublishedDate, a.SourcePriority,
		pq.Array(a.Tags), pq.Array(a.Keywords), a.StoredAt,
		a.SourceTitle,
	)
}

func (p *Postgres) Insert(ctx context.Context, a news.StoredArticle) error {
	query, args, err := insertQuery(a).ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		if constraint, ok := uniqueViolationOn(err); ok {
			return errors.Wrapf(ErrDuplicate, "unique constraint %s", constraint)
		}
		return errors.Wrap(err, "insert article")
	}
	return nil
}

func uniqueViolationOn(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func windowQuery(from, to string) sq.SelectBuilder {
	return psql.Select(articleColumns...).From("articles").
		Where(sq.GtOrEq{"published_date": from}).
		Where(sq.LtOrEq{"published_date": to}).
		OrderBy("published_date DESC")
}

func recentQuery(limit int) sq.SelectBuilder {
	q := psql.Select(articleColumns...).From("articles").OrderBy("stored_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (p *Postgres) PublishedBetween(ctx context.Context, from, to string) ([]news.StoredArticle, error) {
	return p.selectArticles(ctx, windowQuery(from, to))
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]news.StoredArticle, error) {
	return p.selectArticles(ctx, recentQuery(limit))
}

func (p *Postgres) selectArticles(ctx context.Context, b sq.SelectBuilder) ([]news.StoredArticle, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select articles")
	}
	defer rows.Close()

	var out []news.StoredArticle
	for rows.Next() {
		var a news.StoredArticle
		var storedAt time.Time
		if err := rows.Scan(
			&a.ArticleID, &a.Headline, &a.AIHeadline, &a.Description, &a.Content, &a.Explanation,
			&a.Department, &a.Source, &a.URL, &a.PublishedDate, &a.SourcePriority,
			pq.Array(&a.Tags), pq.Array(&a.Keywords), &storedAt,
			&a.SourceTitle,
		); err != nil {
			return nil, errors.Wrap(err, "scan article")
		}
		a.StoredAt = storedAt.UTC()
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate articles")
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count articles")
	}
	return n, nil
}

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
