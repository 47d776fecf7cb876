package news

import (
	"strings"
	"time"
)

// Candidate is a raw feed record that has not been accepted into the corpus yet.
type Candidate struct {
	ArticleID      string
	Title          string
	Description    string
	Content        string
	PubDate        string
	SourceID       string
	Link           string
	SourcePriority *int
	Category       []string
	Keywords       []string
	Tier           string
}

// Verdict is the oracle's opinion about a single candidate.
type Verdict struct {
	IsIssue     bool
	Headline    string
	AIHeadline  string
	Description string
	Content     string
	Explanation string
	Department  string
}

// StoredArticle is the persisted record. ArticleID, Headline and URL are
// each unique on their own.
type StoredArticle struct {
	ArticleID      string    `json:"article_id" bson:"article_id"`
	Headline       string    `json:"headline" bson:"headline"`
	AIHeadline     string    `json:"ai_headline" bson:"ai_headline"`
	Description    string    `json:"description" bson:"description"`
	Content        string    `json:"content" bson:"content"`
	Explanation    string    `json:"issue_reason,omitempty" bson:"issue_reason"`
	Department     string    `json:"department" bson:"department"`
	Source         string    `json:"source" bson:"source"`
	URL            string    `json:"url" bson:"url"`
	PublishedDate  string    `json:"published_date" bson:"published_date"`
	SourcePriority int       `json:"source_priority" bson:"source_priority"`
	Tags           []string  `json:"tags" bson:"tags"`
	Keywords       []string  `json:"keywords" bson:"keywords"`
	StoredAt       time.Time `json:"stored_at" bson:"stored_at"`
	// SourceTitle is the cleaned feed title, kept so a republished story
	// matches even after the headline was rewritten.
	SourceTitle string `json:"source_title,omitempty" bson:"source_title,omitempty"`
}

// Projection is what retrieval hands to readers.
type Projection struct {
	Headline      string `json:"headline"`
	AIHeadline    string `json:"ai_headline"`
	Description   string `json:"description"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
	URL           string `json:"url"`
	IssueReason   string `json:"issue_reason"`
	Department    string `json:"department"`
}

func (a StoredArticle) Projection() Projection {
	return Projection{
		Headline:      a.Headline,
		AIHeadline:    a.AIHeadline,
		Description:   a.Description,
		Content:       a.Content,
		PublishedDate: a.PublishedDate,
		URL:           a.URL,
		IssueReason:   a.Explanation,
		Department:    a.Department,
	}
}

// CategoryBucket is one named group of issue summaries.
type CategoryBucket struct {
	Name   string   `json:"category_name"`
	Issues []string `json:"issues"`
}

// UnknownDepartment is used whenever the oracle names something outside Departments.
const UnknownDepartment = "Unknown"

// Departments lists the administrative departments a verdict may name.
var Departments = []string{
	"Agriculture",
	"Education",
	"Health & Family Welfare",
	"Home (Police)",
	"Revenue",
	"Municipal Administration & Urban Development",
	"Panchayat Raj & Rural Development",
	"Water Resources",
	"Energy",
	"Transport",
	"Roads & Buildings",
	"Industries & Commerce",
	"Environment & Forests",
	"Social Welfare",
	"Women & Child Welfare",
	"Finance",
	"General Administration",
}

var departmentIndex = func() map[string]string {
	idx := make(map[string]string, len(Departments))
	for _, d := range Departments {
		idx[departmentKey(d)] = d
	}
	return idx
}()

func departmentKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ClampDepartment returns the canonical spelling of d, or UnknownDepartment.
func ClampDepartment(d string) string {
	if canonical, ok := departmentIndex[departmentKey(d)]; ok {
		return canonical
	}
	return UnknownDepartment
}

// IsDepartment reports whether d is an enumerated department or the fallback.
func IsDepartment(d string) bool {
	if d == UnknownDepartment {
		return true
	}
	_, ok := departmentIndex[departmentKey(d)]
	return ok && departmentIndex[departmentKey(d)] == d
}
