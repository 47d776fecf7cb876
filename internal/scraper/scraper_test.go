package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/issuedesk/internal/news"
)

const page = `<html><body>
<nav><p>Home | Politics | Sports and everything else</p></nav>
<article>
  <p>The Guntur channel breached on Tuesday night, flooding two villages.</p>
  <p>short</p>
  <p>Officials said repairs   would take at least a week to complete.</p>
</article>
</body></html>`

func TestNeedsBody(t *testing.T) {
	assert.True(t, NeedsBody(&news.Candidate{}))
	assert.True(t, NeedsBody(&news.Candidate{Content: " ONLY AVAILABLE IN PAID PLANS "}))
	assert.False(t, NeedsBody(&news.Candidate{Content: "real text"}))
}

func TestEnrichFillsPaidPlanContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := &news.Candidate{Link: srv.URL + "/story", Content: PaidPlanMarker}
	require.NoError(t, New(0, nil).Enrich(context.Background(), c))

	assert.Equal(t,
		"The Guntur channel breached on Tuesday night, flooding two villages.\n\n"+
			"Officials said repairs would take at least a week to complete.",
		c.Content)
}

func TestEnrichLeavesCandidateOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &news.Candidate{Link: srv.URL, Content: ""}
	assert.Error(t, New(0, nil).Enrich(context.Background(), c))
	assert.Empty(t, c.Content)
}

func TestEnrichSkipsCandidatesWithBody(t *testing.T) {
	c := &news.Candidate{Link: "http://127.0.0.1:1/unreachable", Content: "already here"}
	require.NoError(t, New(0, nil).Enrich(context.Background(), c))
	assert.Equal(t, "already here", c.Content)
}

func TestParagraphsTruncatesOversizedFirstParagraph(t *testing.T) {
	long := strings.Repeat("గుంటూరు ", 1000)
	html := "<article><p>" + long + "</p><p>second paragraph is long enough</p></article>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	got := Paragraphs(doc, genericSelectors)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), maxBody)
	assert.True(t, utf8.ValidString(got))
	assert.NotContains(t, got, "second paragraph")
}

func TestParagraphsCapsLength(t *testing.T) {
	long := strings.Repeat("word ", 300)
	html := "<article><p>" + long + "</p><p>" + long + "</p><p>" + long + "</p></article>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	got := Paragraphs(doc, genericSelectors)
	assert.LessOrEqual(t, len(got), maxBody)
	assert.Equal(t, 2, strings.Count(got, "\n\n")+1)
}
