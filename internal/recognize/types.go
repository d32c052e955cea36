// Package recognize implements the pluggable content recognizers: one
// classifier+extractor per content category, sharing a three-method contract.
package recognize

import (
	"emma/internal/page"
)

// Role identifies which side of a conversation produced a candidate.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleUnspecified Role = ""
)

// CandidateType categorizes an extracted unit of content.
type CandidateType string

const (
	TypeConversation  CandidateType = "conversation"
	TypeCode          CandidateType = "code"
	TypeDocumentation CandidateType = "documentation"
	TypeArticle       CandidateType = "article"
	TypeQuote         CandidateType = "quote"
	TypeResearch      CandidateType = "research"
	TypeSelection     CandidateType = "selection"
	TypePage          CandidateType = "page"
)

// Candidate is one raw extracted unit of memory content, prior to enrichment.
// Content is always non-empty after trimming; recognizers discard anything
// below their minimum length before returning.
type Candidate struct {
	Content  string
	Role     Role
	Type     CandidateType
	Source   string
	Metadata map[string]any
}

// Options controls an extraction pass.
type Options struct {
	// UserTriggered marks an explicit user action. The universal fallback
	// extracts nothing without it.
	UserTriggered bool
	// Selection is the user's current text selection, if any.
	Selection string
}

// Recognizer is the capability contract for one content category.
// CanHandle and Confidence must be fast, side-effect-free DOM reads.
// Extract may walk many nodes; callers contain its failures per recognizer.
type Recognizer interface {
	Name() string
	CanHandle(snap *page.Snapshot) bool
	Confidence(snap *page.Snapshot) float64
	Extract(snap *page.Snapshot, opts Options) ([]Candidate, error)
}

// UniversalConfidence is the fixed score of the fallback recognizer. Specific
// recognizers always score above it when they actually match, so a real match
// outranks the fallback by construction.
const UniversalConfidence = 0.3

// hostMatches reports whether the snapshot hostname equals the domain or is a
// subdomain of it.
func hostMatches(host, domain string) bool {
	if host == domain {
		return true
	}
	return len(host) > len(domain) && host[len(host)-len(domain)-1] == '.' &&
		host[len(host)-len(domain):] == domain
}

func anyHostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if hostMatches(host, d) {
			return true
		}
	}
	return false
}
