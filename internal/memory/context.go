package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// BuildContextForMessage assembles the memory context to accompany an
// incoming message: relevant recalled memories plus the working-state
// summary. Recall failures degrade to working context alone.
func (m *Manager) BuildContextForMessage(ctx context.Context, message string) string {
	var b strings.Builder

	entries, err := m.Recall(ctx, message, 5, RecallOpts{IncludeWorking: true})
	if err != nil {
		log.Printf("recall for context: %v", err)
	}
	if len(entries) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", e.Tier, e.Content))
		}
	}

	if summary := m.Working.ContextSummary(); summary != "Fresh conversation" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(summary)
	}
	return b.String()
}

// SystemPromptAdditions renders the durable identity material for a
// system prompt: the long-term foundation plus strong user knowledge.
func (m *Manager) SystemPromptAdditions(ctx context.Context) (string, error) {
	var b strings.Builder

	identity, err := m.LongTerm.IdentityPrompt(ctx)
	if err != nil {
		return "", err
	}
	b.WriteString(identity)

	prefs, err := m.Semantic.RecallByCategory(ctx, CategoryUserPreference, 5)
	if err != nil {
		return "", err
	}
	facts, err := m.Semantic.RecallByCategory(ctx, CategoryUserFact, 5)
	if err != nil {
		return "", err
	}
	userKnowledge := append(facts, prefs...)
	if len(userKnowledge) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("What you know about the user:\n")
		for _, e := range userKnowledge {
			b.WriteString("- " + e.Content + "\n")
		}
	}
	return b.String(), nil
}

// generateSummary builds a fallback session summary from the working
// window when the caller supplies none.
func (m *Manager) generateSummary() string {
	turns := m.Working.History(0)
	if len(turns) == 0 {
		return "Brief session with no conversation."
	}

	topics := m.Working.ActiveTopics()
	summary := fmt.Sprintf("Conversation with %d exchanges", len(turns))
	if len(topics) > 0 {
		summary += " about " + strings.Join(topics, ", ")
	}
	emotion := m.Working.Emotion()
	if emotion.Intensity > 0.3 {
		summary += fmt.Sprintf(". Overall tone was %s", emotion.Valence)
	}
	return summary + "."
}

// keyMoments picks the emotionally charged turns of the session.
func (m *Manager) keyMoments() []string {
	var moments []string
	for _, turn := range m.Working.History(0) {
		if turn.Tone != ValenceNeutral && turn.Tone != "" {
			text := turn.Content
			if len(text) > 100 {
				text = text[:100] + "..."
			}
			moments = append(moments, text)
		}
		if len(moments) >= 5 {
			break
		}
	}
	return moments
}

// humanizeSince renders an elapsed duration the way a person would say
// it ("earlier today", "3 days ago").
func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Hour:
		return "just moments ago"
	case d < 12*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 24*time.Hour:
		return "earlier today"
	case d < 48*time.Hour:
		return "yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "a week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(d.Hours() / 24 / 30)
		if months == 1 {
			return "a month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
