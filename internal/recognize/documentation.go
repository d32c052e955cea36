package recognize

import (
	"strings"

	"golang.org/x/net/html"

	"emma/internal/page"
)

var docDomains = []string{
	"docs.python.org", "developer.mozilla.org", "devdocs.io",
	"readthedocs.io", "readthedocs.org", "pkg.go.dev", "docs.rs",
	"learn.microsoft.com", "docs.aws.amazon.com", "kubernetes.io",
}

// Heading keywords that mark a section worth keeping.
var importantHeadings = []string{
	"example", "usage", "api", "reference", "syntax",
	"parameter", "return", "install", "getting started",
}

const (
	docMinLength     = 20
	docSectionBudget = 2000
	docSummaryBudget = 1500
)

// DocumentationRecognizer extracts code blocks and key sections from
// reference documentation pages.
type DocumentationRecognizer struct{}

func NewDocumentationRecognizer() *DocumentationRecognizer { return &DocumentationRecognizer{} }

func (r *DocumentationRecognizer) Name() string { return "documentation" }

func (r *DocumentationRecognizer) CanHandle(snap *page.Snapshot) bool {
	if anyHostMatches(snap.Hostname, docDomains) {
		return true
	}
	if strings.HasPrefix(snap.Hostname, "docs.") {
		return true
	}
	// Structural: a main content area holding multiple code blocks.
	return len(snap.Find("main pre code, article pre code, .documentation pre")) >= 2
}

func (r *DocumentationRecognizer) Confidence(snap *page.Snapshot) float64 {
	if anyHostMatches(snap.Hostname, docDomains) || strings.HasPrefix(snap.Hostname, "docs.") {
		return 0.95
	}
	if r.CanHandle(snap) {
		return 0.55
	}
	return 0
}

func (r *DocumentationRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	root := mainContent(snap)
	var out []Candidate

	for _, block := range page.FindAll(root, "pre code, pre") {
		if block.Data == "pre" && len(page.FindAll(block, "code")) > 0 {
			continue // the inner code node is matched on its own
		}
		code := strings.TrimRight(page.RawText(block), "\n ")
		if len(strings.TrimSpace(code)) < docMinLength {
			continue
		}
		out = append(out, Candidate{
			Content: truncateRunes(code, docSectionBudget),
			Type:    TypeCode,
			Source:  snap.Hostname,
		})
	}

	out = append(out, importantSections(snap, root, docSectionBudget)...)

	if summary := leadingParagraphs(root, 2, docSummaryBudget); summary != "" {
		out = append(out, Candidate{
			Content: summary,
			Type:    TypeDocumentation,
			Source:  snap.Hostname,
			Metadata: map[string]any{
				"title": snap.Title,
			},
		})
	}
	return out, nil
}

// importantSections keeps sections whose heading matches the curated keyword
// list. Shared by the documentation and research recognizers.
func importantSections(snap *page.Snapshot, root *html.Node, budget int) []Candidate {
	var out []Candidate
	for _, heading := range page.FindAll(root, "h1, h2, h3") {
		title := strings.ToLower(page.Text(heading))
		if !containsAny(title, importantHeadings) {
			continue
		}
		body := sectionText(heading)
		if len(strings.TrimSpace(body)) < docMinLength {
			continue
		}
		out = append(out, Candidate{
			Content: truncateRunes(body, budget),
			Type:    TypeDocumentation,
			Source:  snap.Hostname,
			Metadata: map[string]any{
				"section": page.Text(heading),
			},
		})
	}
	return out
}

// sectionText collects sibling text after a heading until the next heading of
// equal or higher rank.
func sectionText(heading *html.Node) string {
	var sb strings.Builder
	for sib := heading.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && isHeading(sib.Data) {
			break
		}
		text := page.Text(sib)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

// leadingParagraphs joins the first n non-trivial paragraphs, capped to the
// given rune budget.
func leadingParagraphs(root *html.Node, n, budget int) string {
	var parts []string
	for _, p := range page.FindAll(root, "p") {
		text := page.Text(p)
		if len(text) < 40 {
			continue
		}
		parts = append(parts, text)
		if len(parts) >= n {
			break
		}
	}
	return truncateRunes(strings.Join(parts, " "), budget)
}

// mainContent finds the best main-content container, falling back to body.
func mainContent(snap *page.Snapshot) *html.Node {
	for _, sel := range []string{"main", "article", "#content", ".content", "[role=\"main\"]"} {
		if n := snap.First(sel); n != nil {
			return n
		}
	}
	return snap.Body()
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
