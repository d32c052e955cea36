package recognize

import (
	"net/url"
	"strings"

	"emma/internal/page"
)

var codeDomains = []string{
	"github.com", "gitlab.com", "bitbucket.org",
	"stackoverflow.com", "gist.github.com", "codepen.io",
}

const codeMinLength = 20

// CodeRecognizer extracts source listings from code hosting and Q&A pages.
type CodeRecognizer struct{}

func NewCodeRecognizer() *CodeRecognizer { return &CodeRecognizer{} }

func (r *CodeRecognizer) Name() string { return "code" }

func (r *CodeRecognizer) CanHandle(snap *page.Snapshot) bool {
	if anyHostMatches(snap.Hostname, codeDomains) {
		return true
	}
	return len(snap.Find("pre code, .highlight pre, td.blob-code")) >= 3
}

func (r *CodeRecognizer) Confidence(snap *page.Snapshot) float64 {
	if anyHostMatches(snap.Hostname, codeDomains) {
		return 0.95
	}
	if r.CanHandle(snap) {
		return 0.5
	}
	return 0
}

func (r *CodeRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	var out []Candidate

	repo := parseGitHubPath(snap.URL)

	// File views render one line per element; stitch them back together.
	if lines := snap.Find("td.blob-code, .react-file-line"); len(lines) > 0 {
		var sb strings.Builder
		for _, line := range lines {
			sb.WriteString(page.RawText(line))
			sb.WriteString("\n")
		}
		content := strings.TrimRight(sb.String(), "\n")
		if len(strings.TrimSpace(content)) >= codeMinLength {
			out = append(out, Candidate{
				Content:  content,
				Type:     TypeCode,
				Source:   snap.Hostname,
				Metadata: repo,
			})
		}
		return out, nil
	}

	for _, block := range snap.Find("pre code, .highlight pre") {
		code := strings.TrimRight(page.RawText(block), "\n ")
		if len(strings.TrimSpace(code)) < codeMinLength {
			continue
		}
		out = append(out, Candidate{
			Content:  code,
			Type:     TypeCode,
			Source:   snap.Hostname,
			Metadata: repo,
		})
	}
	return out, nil
}

// parseGitHubPath pulls {owner, repo, branch, file} out of a GitHub blob URL.
// Returns nil for anything that doesn't look like one.
func parseGitHubPath(rawURL string) map[string]any {
	u, err := url.Parse(rawURL)
	if err != nil || !hostMatches(u.Hostname(), "github.com") {
		return nil
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return nil
	}
	meta := map[string]any{
		"owner": segs[0],
		"repo":  segs[1],
	}
	// /{owner}/{repo}/blob/{branch}/{path...}
	if len(segs) >= 5 && (segs[2] == "blob" || segs[2] == "tree" || segs[2] == "raw") {
		meta["branch"] = segs[3]
		meta["file"] = strings.Join(segs[4:], "/")
	}
	return meta
}
