// Package newsdata fetches candidate articles from the newsdata.io news API.
package newsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/retry"
)

const DefaultBaseURL = "https://newsdata.io"

// StatusError is a non-2xx answer from the feed. It is never retried.
type StatusError struct {
	Tier       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("newsdata tier %q returned status %d: %s", e.Tier, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL         string
	APIKey          string
	Country         string
	Query           string
	Size            int
	RemoveDuplicate bool
	DedupByID       bool
	Timeout         time.Duration
	Retry           retry.RetryConfig
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "in"
	}
	if cfg.Query == "" {
		cfg.Query = "Andhra Pradesh"
	}
	if cfg.Size <= 0 {
		cfg.Size = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With(zap.String("component", "newsdata")),
	}
}

type response struct {
	Status  string    `json:"status"`
	Results []article `json:"results"`
}

type article struct {
	ArticleID      string   `json:"article_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Content        string   `json:"content"`
	PubDate        string   `json:"pubDate"`
	SourceID       string   `json:"source_id"`
	Link           string   `json:"link"`
	SourcePriority *int     `json:"source_priority"`
	Category       []string `json:"category"`
	Keywords       []string `json:"keywords"`
}

func (a article) candidate(tier string) news.Candidate {
	return news.Candidate{
		ArticleID:      a.ArticleID,
		Title:          a.Title,
		Description:    a.Description,
		Content:        a.Content,
		PubDate:        a.PubDate,
		SourceID:       a.SourceID,
		Link:           a.Link,
		SourcePriority: a.SourcePriority,
		Category:       a.Category,
		Keywords:       a.Keywords,
		Tier:           tier,
	}
}

func (c *Client) tierURL(tier string) string {
	params := url.Values{}
	params.Set("apikey", c.cfg.APIKey)
	params.Set("country", c.cfg.Country)
	params.Set("q", c.cfg.Query)
	params.Set("size", strconv.Itoa(c.cfg.Size))
	if c.cfg.RemoveDuplicate {
		params.Set("removeduplicate", "1")
	}
	if tier != "" {
		params.Set("prioritydomain", tier)
	}
	return c.cfg.BaseURL + "/api/1/news?" + params.Encode()
}

// Fetch makes one request for a priority tier. Transport errors are retried,
// a non-2xx status is returned straight away as *StatusError.
func (c *Client) Fetch(ctx context.Context, tier string) ([]news.Candidate, error) {
	var out []news.Candidate

	err := retry.WithRetry(ctx, c.cfg.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tierURL(tier), nil)
		if err != nil {
			return retry.Permanent(errors.Wrap(err, "build request"))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warn("feed request failed", zap.String("tier", tier), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(&StatusError{Tier: tier, StatusCode: resp.StatusCode, Body: string(body)})
		}

		var payload response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return retry.Permanent(errors.Wrapf(err, "decode tier %q", tier))
		}
		if payload.Status != "" && payload.Status != "success" {
			return retry.Permanent(errors.Errorf("newsdata tier %q answered status %q", tier, payload.Status))
		}

		out = make([]news.Candidate, 0, len(payload.Results))
		for _, a := range payload.Results {
			out = append(out, a.candidate(tier))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("fetched tier", zap.String("tier", tier), zap.Int("articles", len(out)))
	return out, nil
}

// FetchAll fetches the tiers in order and concatenates them. Any tier
// failing fails the call. With DedupByID only the first copy of an id is
// kept.
func (c *Client) FetchAll(ctx context.Context, tiers []string) ([]news.Candidate, error) {
	if len(tiers) == 0 {
		tiers = []string{""}
	}

	var all []news.Candidate
	seen := make(map[string]struct{})
	for _, tier := range tiers {
		batch, err := c.Fetch(ctx, tier)
		if err != nil {
			return nil, err
		}
		for _, cand := range batch {
			if c.cfg.DedupByID && cand.ArticleID != "" {
				if _, ok := seen[cand.ArticleID]; ok {
					continue
				}
				seen[cand.ArticleID] = struct{}{}
			}
			all = append(all, cand)
		}
	}
	return all, nil
}
