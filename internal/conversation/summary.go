package conversation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/offerforge/internal/domain"
)

// maxSummaryRunes bounds every one-line summary.
const maxSummaryRunes = 120

// Summarize renders a card answer as one line. Editable content is
// summarised by what changed, never by the field values themselves.
func Summarize(card *domain.Card, resp *domain.CardResponse) string {
	if card == nil || resp == nil {
		return ""
	}
	var s string
	switch card.Type {
	case domain.CardOptionSelector:
		labels := make([]string, 0, len(resp.Values))
		for _, v := range resp.Values {
			if label, ok := card.OptionSelector.Label(v); ok {
				labels = append(labels, label)
			} else {
				labels = append(labels, v)
			}
		}
		s = "Selected: " + strings.Join(labels, ", ")
	case domain.CardTextInput:
		s = "Answered: " + firstLine(resp.Text)
	case domain.CardLocation:
		s = "Location: " + firstLine(resp.Text)
	case domain.CardScoreCards:
		s = "Chose a recommendation"
		if len(resp.Values) > 0 {
			if rec, ok := card.ScoreCards.Find(resp.Values[0]); ok {
				s = "Chose niche: " + rec.Niche
			}
		}
	case domain.CardEditableContent:
		edited := 0
		for _, f := range card.EditableContent.Fields {
			if v, ok := resp.Fields[f.Name]; ok && v != f.Value {
				edited++
			}
		}
		if edited == 0 {
			s = fmt.Sprintf("Accepted %d fields without changes", len(card.EditableContent.Fields))
		} else {
			s = fmt.Sprintf("Reviewed %d fields, edited %d", len(card.EditableContent.Fields), edited)
		}
	case domain.CardProgressTracker, domain.CardOfferSummary, domain.CardSystemReady:
		s = string(card.Type)
	}
	return truncate(s)
}

// Describe renders an assistant card as one line.
func Describe(card *domain.Card) string {
	if card == nil {
		return ""
	}
	var s string
	switch card.Type {
	case domain.CardOptionSelector:
		s = card.OptionSelector.Prompt
	case domain.CardTextInput:
		s = card.TextInput.Prompt
	case domain.CardLocation:
		s = card.Location.Prompt
	case domain.CardProgressTracker:
		s = card.ProgressTracker.Title
	case domain.CardScoreCards:
		s = fmt.Sprintf("%s (%d options)", card.ScoreCards.Prompt, len(card.ScoreCards.Recommendations))
	case domain.CardEditableContent:
		s = card.EditableContent.Title
	case domain.CardOfferSummary:
		s = card.OfferSummary.Headline
	case domain.CardSystemReady:
		s = "System ready: " + card.SystemReady.DemoURL
	}
	return truncate(firstLine(s))
}

// Compact converts display messages into the persisted reference form.
func Compact(messages []domain.DisplayMessage) []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, 0, len(messages))
	for _, m := range messages {
		entry := domain.ConversationMessage{Role: m.Role, Timestamp: m.CreatedAt}
		switch {
		case m.Ref != nil:
			ref := *m.Ref
			entry.Content = ref.Summary
			entry.Card = &ref
		case m.Kind == domain.KindCard && m.Card != nil:
			entry.Content = Describe(m.Card)
			entry.Card = &domain.CardRef{Type: m.Card.Type, Completed: m.Completed, Summary: entry.Content}
		default:
			entry.Content = m.Text
		}
		out = append(out, entry)
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[:i]) + " …"
	}
	return s
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxSummaryRunes-1]) + "…"
}
