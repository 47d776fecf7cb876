// Package classifier asks the oracle whether an article describes a public
// issue and turns its answer into a news.Verdict.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
	"github.com/deusflow/issuedesk/internal/oracle"
)

const bodyPromptRunes = 1000

// ParseError means the oracle answered but the answer held no usable verdict.
type ParseError struct {
	Response string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("classification parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type Config struct {
	Region      string
	MaxTokens   int
	Temperature float32
}

type Classifier struct {
	oracle oracle.TextOracle
	cfg    Config
	log    *zap.Logger
}

func New(o oracle.TextOracle, cfg Config, log *zap.Logger) *Classifier {
	if cfg.Region == "" {
		cfg.Region = "Andhra Pradesh"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{oracle: o, cfg: cfg, log: log.With(zap.String("component", "classifier"))}
}

// Classify returns (nil, nil) for "not an issue". Any error also means no
// verdict: *ParseError when the answer was unusable, a wrapped oracle error
// otherwise.
func (c *Classifier) Classify(ctx context.Context, cand news.Candidate) (*news.Verdict, error) {
	raw, err := c.oracle.Generate(ctx, oracle.Request{
		Prompt:      c.buildPrompt(cand),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "classify %s", cand.ArticleID)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		return nil, err
	}
	if !verdict.IsIssue {
		c.log.Debug("not an issue", zap.String("article_id", cand.ArticleID))
		return nil, nil
	}
	return verdict, nil
}

type rawVerdict struct {
	IsIssue     json.RawMessage `json:"is_issue"`
	Headline    string          `json:"headline"`
	AIHeadline  string          `json:"ai_headline"`
	Description string          `json:"description"`
	Content     string          `json:"content"`
	Explanation string          `json:"explanation"`
	Department  string          `json:"department"`
}

// ParseVerdict pulls the first JSON object out of an oracle answer.
func ParseVerdict(response string) (*news.Verdict, error) {
	if strings.TrimSpace(response) == "" {
		return nil, &ParseError{Response: response, Err: oracle.ErrEmptyResponse}
	}
	obj, err := oracle.ExtractJSON(response)
	if err != nil {
		return nil, &ParseError{Response: response, Err: err}
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(obj), &rv); err != nil {
		return nil, &ParseError{Response: response, Err: errors.Wrap(err, "decode verdict")}
	}

	return &news.Verdict{
		IsIssue:     issueFlag(rv.IsIssue),
		Headline:    strings.TrimSpace(rv.Headline),
		AIHeadline:  strings.TrimSpace(rv.AIHeadline),
		Description: strings.TrimSpace(rv.Description),
		Content:     strings.TrimSpace(rv.Content),
		Explanation: strings.TrimSpace(rv.Explanation),
		Department:  news.ClampDepartment(rv.Department),
	}, nil
}

// issueFlag accepts true, "YES" or "true"; everything else is false.
func issueFlag(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "YES", "TRUE", "Y":
			return true
		}
	}
	return false
}

func (c *Classifier) buildPrompt(cand news.Candidate) string {
	body := []rune(cand.Content)
	if len(body) > bodyPromptRunes {
		body = body[:bodyPromptRunes]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a governance and public policy analyst for %s.\n\n", c.cfg.Region)
	b.WriteString("Article:\n")
	fmt.Fprintf(&b, "Title: %s\n", cand.Title)
	fmt.Fprintf(&b, "Description: %s\n", cand.Description)
	fmt.Fprintf(&b, "Content: %s\n", string(body))
	fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(cand.Keywords, ", "))
	fmt.Fprintf(&b, "Categories: %s\n\n", strings.Join(cand.Category, ", "))

	fmt.Fprintf(&b, "Decide whether the article describes a major public issue in %s: a governance failure, "+
		"social unrest, corruption, crime, a disaster or another problem of public interest.\n\n", c.cfg.Region)
	b.WriteString("Reply with one JSON object and nothing else:\n")
	b.WriteString(`{"is_issue": true or false, "headline": "English headline", "ai_headline": "short headline, at most 12 words", ` +
		`"description": "English description", "content": "English body", ` +
		`"explanation": "HTML fragment explaining the issue and naming the district, city or town", ` +
		`"department": "one department from the list"}` + "\n\n")
	fmt.Fprintf(&b, "Departments: %s, %s\n", strings.Join(news.Departments, "; "), news.UnknownDepartment)
	b.WriteString("If it is not an issue, reply {\"is_issue\": false}.\n")
	return b.String()
}
