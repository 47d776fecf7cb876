// Package scraper fills in article bodies the feed withheld by reading the
// publisher page.
package scraper

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/deusflow/issuedesk/internal/news"
)

// PaidPlanMarker is what newsdata puts in content on the free tier.
const PaidPlanMarker = "ONLY AVAILABLE IN PAID PLANS"

const maxBody = 4000

// Enricher fetches the article page when a candidate carries no usable body.
type Enricher struct {
	http *http.Client
	log  *zap.Logger
}

func New(timeout time.Duration, log *zap.Logger) *Enricher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Enricher{
		http: &http.Client{Timeout: timeout},
		log:  log.With(zap.String("component", "scraper")),
	}
}

// NeedsBody reports whether the candidate content is empty or the paid-plan stub.
func NeedsBody(c *news.Candidate) bool {
	body := strings.TrimSpace(c.Content)
	return body == "" || strings.EqualFold(body, PaidPlanMarker)
}

// Enrich replaces the candidate content with text scraped from its link.
// Failures leave the candidate untouched and are reported to the caller,
// who may ignore them.
func (e *Enricher) Enrich(ctx context.Context, c *news.Candidate) error {
	if !NeedsBody(c) || c.Link == "" {
		return nil
	}

	body, err := e.extract(ctx, c.Link)
	if err != nil {
		e.log.Debug("could not enrich article", zap.String("url", c.Link), zap.Error(err))
		return err
	}
	c.Content = body
	return nil
}

func (e *Enricher) extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; issuedesk/1.0)")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "load page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "parse HTML")
	}

	content := Paragraphs(doc, selectorsFor(url))
	if content == "" {
		return "", errors.New("no article text found")
	}
	return content, nil
}

var siteSelectors = map[string][]string{
	"thehindu.com":         {".articlebodycontent p", "#content-body p"},
	"deccanchronicle.com":  {".story-content p", "#storyBody p"},
	"newindianexpress.com": {"#storyContent p", ".articlestory p"},
	"timesofindia":         {"._s30J", ".Normal", "article p"},
}

var genericSelectors = []string{
	"article p",
	".article-body p",
	".article p",
	".content p",
	".post-content p",
	".entry-content p",
	"main p",
	"p",
}

func selectorsFor(url string) []string {
	for host, sel := range siteSelectors {
		if strings.Contains(url, host) {
			return append(append([]string{}, sel...), genericSelectors...)
		}
	}
	return genericSelectors
}

// Paragraphs returns the text of the first selector that yields paragraphs,
// joined by blank lines and cut at a paragraph boundary. A first paragraph
// that is already too long is truncated.
func Paragraphs(doc *goquery.Document, selectors []string) string {
	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			break
		}
	}

	var b strings.Builder
	for _, p := range paragraphs {
		if b.Len() == 0 && len(p) > maxBody {
			b.WriteString(truncate(p, maxBody))
			break
		}
		if b.Len() > 0 {
			if b.Len()+len("\n\n")+len(p) > maxBody {
				break
			}
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
