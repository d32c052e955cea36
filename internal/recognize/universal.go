package recognize

import (
	"strings"

	"emma/internal/page"
)

const (
	selectionMinLength = 10
	pageTextBudget     = 3000
)

// UniversalRecognizer is the always-applicable fallback. It never extracts
// anything on automatic passes; only an explicit user action produces a
// candidate, either the current selection or the visible page text.
type UniversalRecognizer struct{}

func NewUniversalRecognizer() *UniversalRecognizer { return &UniversalRecognizer{} }

func (r *UniversalRecognizer) Name() string { return "universal" }

func (r *UniversalRecognizer) CanHandle(snap *page.Snapshot) bool { return true }

func (r *UniversalRecognizer) Confidence(snap *page.Snapshot) float64 {
	return UniversalConfidence
}

func (r *UniversalRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	if !opts.UserTriggered {
		return nil, nil
	}

	if sel := strings.TrimSpace(opts.Selection); len(sel) > selectionMinLength {
		return []Candidate{{
			Content: sel,
			Type:    TypeSelection,
			Source:  "manual",
		}}, nil
	}

	text := snap.VisibleText(pageTextBudget)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Candidate{{
		Content: text,
		Type:    TypePage,
		Source:  "manual",
		Metadata: map[string]any{
			"title": snap.Title,
		},
	}}, nil
}
