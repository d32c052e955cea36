package recognize

import (
	"strings"

	"golang.org/x/net/html"

	"emma/internal/page"
)

// chatPlatform describes one known chat host: its domains and the selector
// triad used to pull messages out and classify them by role.
type chatPlatform struct {
	Name       string
	Domains    []string
	MessageSel string
	UserSel    string
	AssistSel  string
}

// Ordered table; first domain match wins. Selectors track each platform's
// production DOM and will drift as they ship changes.
var chatPlatforms = []chatPlatform{
	{
		Name:       "chatgpt",
		Domains:    []string{"chat.openai.com", "chatgpt.com"},
		MessageSel: "[data-message-author-role]",
		UserSel:    `[data-message-author-role="user"]`,
		AssistSel:  `[data-message-author-role="assistant"]`,
	},
	{
		Name:       "claude",
		Domains:    []string{"claude.ai"},
		MessageSel: "[data-testid*=\"message\"], .font-user-message, .font-claude-message",
		UserSel:    ".font-user-message, [data-testid=\"user-message\"]",
		AssistSel:  ".font-claude-message, [data-testid=\"assistant-message\"]",
	},
	{
		Name:       "gemini",
		Domains:    []string{"gemini.google.com", "bard.google.com"},
		MessageSel: "user-query, model-response",
		UserSel:    "user-query",
		AssistSel:  "model-response",
	},
	{
		Name:       "poe",
		Domains:    []string{"poe.com"},
		MessageSel: `[class*="Message_row"]`,
		UserSel:    `[class*="Message_rightSideMessage"]`,
		AssistSel:  `[class*="Message_leftSideMessage"]`,
	},
	{
		Name:       "characterai",
		Domains:    []string{"character.ai", "beta.character.ai"},
		MessageSel: `[class*="msg-row"], .swiper-slide div[class*="markdown"]`,
		UserSel:    `[class*="msg-row-user"]`,
		AssistSel:  `[class*="msg-row-char"]`,
	},
}

// Generic structural markers for unrecognized chat UIs.
const genericMessageSel = `[class*="message"], [class*="chat-bubble"], [data-role], [role="log"] div`

const conversationMinLength = 10

// ConversationRecognizer extracts user/assistant turns from chat transcripts.
type ConversationRecognizer struct{}

func NewConversationRecognizer() *ConversationRecognizer { return &ConversationRecognizer{} }

func (r *ConversationRecognizer) Name() string { return "conversation" }

func (r *ConversationRecognizer) CanHandle(snap *page.Snapshot) bool {
	if r.platformFor(snap) != nil {
		return true
	}
	// Heuristic fallback: explicit role labels in the text, or chat/dialog
	// markers in the DOM.
	text := snap.VisibleText(4000)
	if strings.Contains(text, "User:") && strings.Contains(text, "Assistant:") {
		return true
	}
	if len(snap.Find(`[role="log"], [class*="conversation"], [class*="chat-thread"]`)) > 0 {
		return true
	}
	return false
}

func (r *ConversationRecognizer) Confidence(snap *page.Snapshot) float64 {
	if r.platformFor(snap) != nil {
		return 0.95
	}
	if r.CanHandle(snap) {
		return 0.6
	}
	return 0
}

func (r *ConversationRecognizer) Extract(snap *page.Snapshot, opts Options) ([]Candidate, error) {
	if p := r.platformFor(snap); p != nil {
		return r.extractPlatform(snap, p), nil
	}
	return r.extractGeneric(snap), nil
}

func (r *ConversationRecognizer) platformFor(snap *page.Snapshot) *chatPlatform {
	for i := range chatPlatforms {
		if anyHostMatches(snap.Hostname, chatPlatforms[i].Domains) {
			return &chatPlatforms[i]
		}
	}
	return nil
}

func (r *ConversationRecognizer) extractPlatform(snap *page.Snapshot, p *chatPlatform) []Candidate {
	var out []Candidate
	for _, msg := range snap.Find(p.MessageSel) {
		content := page.Text(msg)
		if len(strings.TrimSpace(content)) < conversationMinLength {
			continue
		}

		role := RoleUnspecified
		switch {
		case matchesOrContains(msg, p.UserSel):
			role = RoleUser
		case matchesOrContains(msg, p.AssistSel):
			role = RoleAssistant
		}

		out = append(out, Candidate{
			Content: content,
			Role:    role,
			Type:    TypeConversation,
			Source:  p.Name,
		})
	}
	return out
}

// extractGeneric pulls anything that structurally looks like a message and
// assigns roles by strict alternation starting at user. The alternation is an
// approximation, not verified role detection; platform tables above are the
// reliable path.
func (r *ConversationRecognizer) extractGeneric(snap *page.Snapshot) []Candidate {
	var out []Candidate
	role := RoleUser
	for _, msg := range snap.Find(genericMessageSel) {
		content := page.Text(msg)
		if len(strings.TrimSpace(content)) < conversationMinLength {
			continue
		}
		out = append(out, Candidate{
			Content: content,
			Role:    role,
			Type:    TypeConversation,
			Source:  "unknown",
		})
		if role == RoleUser {
			role = RoleAssistant
		} else {
			role = RoleUser
		}
	}
	return out
}

// matchesOrContains reports whether the node itself or one of its descendants
// matches the selector.
func matchesOrContains(n *html.Node, selector string) bool {
	return len(page.FindAll(n, selector)) > 0
}
