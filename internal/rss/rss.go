// Package rss is a candidate source built from plain RSS/Atom feeds.
package rss

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/storage"
)

// FeedsConfig is the YAML file layout:
//
//	feeds:
//	  - url: https://...
//	    tier: top
//	    priority: 5000
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL      string `yaml:"url"`
	Tier     string `yaml:"tier"`
	Priority *int   `yaml:"priority"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open feeds config")
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode feeds config")
	}
	return cfg.Feeds, nil
}

type Source struct {
	feeds  []Feed
	parser *gofeed.Parser
	log    *zap.Logger
}

func NewSource(feeds []Feed, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{feeds: feeds, parser: gofeed.NewParser(), log: log.With(zap.String("component", "rss"))}
}

// Fetch loads every feed of the tier. A broken feed is skipped; the tier
// fails only when none of its feeds could be read.
func (s *Source) Fetch(ctx context.Context, tier string) ([]news.Candidate, error) {
	var out []news.Candidate
	tried, ok := 0, 0
	var lastErr error

	for _, feed := range s.feeds {
		if tier != "" && feed.Tier != tier {
			continue
		}
		tried++

		parsed, err := s.parser.ParseURLWithContext(feed.URL, ctx)
		if err != nil {
			s.log.Warn("error parsing feed", zap.String("url", feed.URL), zap.Error(err))
			lastErr = err
			continue
		}
		ok++
		for _, item := range parsed.Items {
			out = append(out, toCandidate(parsed.Title, feed, item))
		}
		s.log.Info("loaded feed", zap.String("url", feed.URL), zap.Int("items", len(parsed.Items)))
	}

	if tried > 0 && ok == 0 {
		return nil, errors.Wrapf(lastErr, "no feed of tier %q could be read", tier)
	}
	return out, nil
}

func (s *Source) FetchAll(ctx context.Context, tiers []string) ([]news.Candidate, error) {
	if len(tiers) == 0 {
		tiers = []string{""}
	}
	var all []news.Candidate
	for _, tier := range tiers {
		batch, err := s.Fetch(ctx, tier)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

func toCandidate(source string, feed Feed, item *gofeed.Item) news.Candidate {
	id := strings.TrimSpace(item.GUID)
	if id == "" && item.Link != "" {
		sum := sha256.Sum256([]byte(item.Link))
		id = hex.EncodeToString(sum[:])[:32]
	}

	published := item.Published
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC().Format(storage.PublishedLayout)
	}

	return news.Candidate{
		ArticleID:      id,
		Title:          item.Title,
		Description:    item.Description,
		Content:        item.Content,
		PubDate:        published,
		SourceID:       source,
		Link:           item.Link,
		SourcePriority: feed.Priority,
		Category:       item.Categories,
		Tier:           feed.Tier,
	}
}
