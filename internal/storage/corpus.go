// Package storage persists accepted articles. Every backend enforces
// uniqueness of article_id, headline and url independently.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/deusflow/issuedesk/internal/news"
)

// ErrDuplicate is returned by Insert when any unique field is already taken.
var ErrDuplicate = errors.New("article already stored")

const (
	DateLayout      = "2006-01-02"
	PublishedLayout = "2006-01-02 15:04:05"
)

// Corpus is the persisted collection of classified articles.
type Corpus interface {
	HasArticleID(ctx context.Context, id string) (bool, error)
	HasURL(ctx context.Context, url string) (bool, error)
	Headlines(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, a news.StoredArticle) error
	// PublishedBetween compares published_date as a string, both ends
	// inclusive, newest first.
	PublishedBetween(ctx context.Context, from, to string) ([]news.StoredArticle, error)
	// Recent returns the newest stored articles by stored_at; limit <= 0
	// means all of them.
	Recent(ctx context.Context, limit int) ([]news.StoredArticle, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Window turns an optional YYYY-MM-DD date into published_date bounds. With
// no date it covers the 24 hours before now.
func Window(date string, now time.Time) (from, to string, err error) {
	date = strings.TrimSpace(date)
	if date == "" {
		now = now.UTC()
		return now.Add(-24 * time.Hour).Format(PublishedLayout), now.Format(PublishedLayout), nil
	}

	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid date %q, want YYYY-MM-DD", date)
	}
	return day.Format(PublishedLayout), day.AddDate(0, 0, 1).Format(PublishedLayout), nil
}
