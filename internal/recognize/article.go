package recognize

import (
	"strings"

	"emma/internal/page"
)

var articleDomains = []string{
	"medium.com", "substack.com", "dev.to", "hashnode.dev",
	"nytimes.com", "theguardian.com", "bbc.com", "bbc.co.uk",
	"washingtonpost.com", "wired.com", "theatlantic.com",
}

const (
	articleMinLength  = 15
	articleTextBudget = 5000
)

// ArticleRecognizer extracts long-form editorial content: a summary, the
// capped full text, and pull quotes.
type ArticleRecognizer struct{}

func NewArticleRecognizer() *ArticleRecognizer { return &ArticleRecognizer{} }

func (r *ArticleRecognizer) Name() string { return "article" }

func (r *ArticleRecognizer) CanHandle(snap *page.Snapshot) bool {
	if anyHostMatches(snap.Hostname, articleDomains) {
		return true
	}
	if snap.First("article") == nil {
		return false
	}
	// Require real prose, not just an <article> wrapper around widgets.
	return len(page.FindAll(snap.First("article"), "p")) >= 3
}

func (r *ArticleRecognizer) Confidence(snap *page.Snapshot) float64 {
	if anyHostMatches(snap.Hostname, articleDomains) {
		return 0.95
	}
	if r.CanHandle(snap) {
		return 0.55
	}
	return 0
}

func (r *ArticleRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	root := mainContent(snap)
	var out []Candidate

	summary := ""
	if n := snap.First(".summary, .abstract, [itemprop=\"description\"]"); n != nil {
		summary = page.Text(n)
	}
	if summary == "" {
		summary = leadingParagraphs(root, 3, 600)
	}
	if len(strings.TrimSpace(summary)) >= articleMinLength {
		out = append(out, Candidate{
			Content: summary,
			Type:    TypeArticle,
			Source:  snap.Hostname,
			Metadata: map[string]any{
				"title": snap.Title,
				"kind":  "summary",
			},
		})
	}

	if body := page.Text(root); len(strings.TrimSpace(body)) >= articleMinLength {
		out = append(out, Candidate{
			Content: truncateRunes(body, articleTextBudget),
			Type:    TypeArticle,
			Source:  snap.Hostname,
			Metadata: map[string]any{
				"title": snap.Title,
				"kind":  "fulltext",
			},
		})
	}

	for _, quote := range page.FindAll(root, "blockquote") {
		text := page.Text(quote)
		if len(strings.TrimSpace(text)) < articleMinLength {
			continue
		}
		out = append(out, Candidate{
			Content: text,
			Type:    TypeQuote,
			Source:  snap.Hostname,
		})
	}
	return out, nil
}
