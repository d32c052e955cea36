package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emma/internal/page"
)

func mustSnapshot(t *testing.T, url, source string) *page.Snapshot {
	t.Helper()
	snap, err := page.Parse(url, source)
	require.NoError(t, err)
	return snap
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"github.com", "github.com", true},
		{"gist.github.com", "github.com", true},
		{"deep.sub.github.com", "github.com", true},
		{"notgithub.com", "github.com", false},
		{"github.com.evil.example", "github.com", false},
		{"", "github.com", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, hostMatches(tc.host, tc.domain), "%s vs %s", tc.host, tc.domain)
	}
}

func TestNoRecognizerReturnsBlankContent(t *testing.T) {
	// Sparse pages across every recognizer: whatever comes back must have
	// non-blank content.
	recognizers := []Recognizer{
		NewConversationRecognizer(),
		NewCodeRecognizer(),
		NewDocumentationRecognizer(),
		NewArticleRecognizer(),
		NewResearchRecognizer(),
		NewUniversalRecognizer(),
	}
	snaps := []*page.Snapshot{
		mustSnapshot(t, "https://chat.openai.com/", `<html><body><div data-message-author-role="user">  </div></body></html>`),
		mustSnapshot(t, "https://github.com/o/r", `<html><body><pre><code>x</code></pre></body></html>`),
		mustSnapshot(t, "https://example.com/", `<html><body></body></html>`),
	}
	for _, r := range recognizers {
		for _, snap := range snaps {
			candidates, err := r.Extract(snap, Options{UserTriggered: true})
			require.NoError(t, err, r.Name())
			for _, c := range candidates {
				assert.NotEmpty(t, c.Content, "recognizer %s emitted blank content", r.Name())
			}
		}
	}
}
