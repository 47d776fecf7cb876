// Package dedup decides whether a candidate has already been accepted,
// either earlier in the same batch or in a previous run.
package dedup

import (
	"context"

	"github.com/pkg/errors"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/normalize"
)

// Reason says which rule rejected a candidate.
type Reason string

const (
	NotDuplicate   Reason = ""
	MissingID      Reason = "missing_id"
	SeenInBatch    Reason = "seen_in_batch"
	StoredID       Reason = "stored_id"
	StoredHeadline Reason = "stored_headline"
	StoredURL      Reason = "stored_url"
)

// Lookup is the read side of the corpus the gate needs.
type Lookup interface {
	HasArticleID(ctx context.Context, id string) (bool, error)
	HasURL(ctx context.Context, url string) (bool, error)
	Headlines(ctx context.Context) ([]string, error)
}

// Gate holds the working set of one ingestion batch. Matching is exact.
type Gate struct {
	corpus    Lookup
	seenIDs   map[string]struct{}
	headlines map[string]struct{}
	urls      map[string]struct{}
}

func NewGate(corpus Lookup) *Gate {
	return &Gate{
		corpus:    corpus,
		seenIDs:   make(map[string]struct{}),
		headlines: make(map[string]struct{}),
		urls:      make(map[string]struct{}),
	}
}

// Preload pulls every stored headline once per batch.
func (g *Gate) Preload(ctx context.Context) error {
	hs, err := g.corpus.Headlines(ctx)
	if err != nil {
		return errors.Wrap(err, "preload headlines")
	}
	for _, h := range hs {
		g.headlines[h] = struct{}{}
	}
	return nil
}

// IsDuplicate checks the candidate and records its id as seen.
func (g *Gate) IsDuplicate(ctx context.Context, c news.Candidate) (bool, Reason, error) {
	if c.ArticleID == "" {
		return true, MissingID, nil
	}

	if _, ok := g.seenIDs[c.ArticleID]; ok {
		return true, SeenInBatch, nil
	}
	g.seenIDs[c.ArticleID] = struct{}{}

	stored, err := g.corpus.HasArticleID(ctx, c.ArticleID)
	if err != nil {
		return false, NotDuplicate, errors.Wrap(err, "lookup article id")
	}
	if stored {
		return true, StoredID, nil
	}

	if h := normalize.Clean(c.Title); h != "" {
		if _, ok := g.headlines[h]; ok {
			return true, StoredHeadline, nil
		}
	}

	if url := normalize.Clean(c.Link); url != "" {
		if _, ok := g.urls[url]; ok {
			return true, StoredURL, nil
		}
		stored, err := g.corpus.HasURL(ctx, url)
		if err != nil {
			return false, NotDuplicate, errors.Wrap(err, "lookup url")
		}
		if stored {
			return true, StoredURL, nil
		}
	}

	return false, NotDuplicate, nil
}

// Remember adds an article stored during this batch to the working set,
// under both its stored headline and the feed title it came from.
func (g *Gate) Remember(a news.StoredArticle) {
	g.seenIDs[a.ArticleID] = struct{}{}
	if a.Headline != "" {
		g.headlines[a.Headline] = struct{}{}
	}
	if a.SourceTitle != "" {
		g.headlines[a.SourceTitle] = struct{}{}
	}
	if a.URL != "" {
		g.urls[a.URL] = struct{}{}
	}
}
