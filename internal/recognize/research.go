package recognize

import (
	"strings"

	"emma/internal/page"
)

var researchDomains = []string{
	"arxiv.org", "scholar.google.com", "pubmed.ncbi.nlm.nih.gov",
	"jstor.org", "semanticscholar.org", "biorxiv.org", "ssrn.com",
}

const researchMinLength = 20

// ResearchRecognizer extracts abstracts, citations, and findings from
// academic pages.
type ResearchRecognizer struct{}

func NewResearchRecognizer() *ResearchRecognizer { return &ResearchRecognizer{} }

func (r *ResearchRecognizer) Name() string { return "research" }

func (r *ResearchRecognizer) CanHandle(snap *page.Snapshot) bool {
	if anyHostMatches(snap.Hostname, researchDomains) {
		return true
	}
	return snap.First(".abstract, #abstract, [class*=\"abstract\"]") != nil
}

func (r *ResearchRecognizer) Confidence(snap *page.Snapshot) float64 {
	if anyHostMatches(snap.Hostname, researchDomains) {
		return 0.95
	}
	if r.CanHandle(snap) {
		return 0.55
	}
	return 0
}

func (r *ResearchRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	var out []Candidate

	abstract := snap.First(".abstract, #abstract, [class*=\"abstract\"], blockquote.abstract")
	if abstract != nil {
		text := strings.TrimSpace(strings.TrimPrefix(page.Text(abstract), "Abstract:"))
		text = strings.TrimSpace(strings.TrimPrefix(text, "Abstract"))
		if len(text) >= researchMinLength {
			out = append(out, Candidate{
				Content: truncateRunes(text, 3000),
				Type:    TypeResearch,
				Source:  snap.Hostname,
				Metadata: map[string]any{
					"title": snap.Title,
					"kind":  "abstract",
				},
			})
		}
	}

	root := mainContent(snap)
	out = append(out, importantSections(snap, root, 2000)...)

	for _, quote := range page.FindAll(root, "blockquote") {
		if quote == abstract {
			continue
		}
		text := page.Text(quote)
		if len(strings.TrimSpace(text)) < researchMinLength {
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
