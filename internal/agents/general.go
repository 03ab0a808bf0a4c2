package agents

import (
	"context"
	"strings"

	"github.com/antoniostano/finchat/internal/llm"
)

// GeneralChat answers free-form messages with memory, financial context and
// the recent transcript. The model's text is returned as is.
func (d *Dispatcher) GeneralChat(ctx context.Context, userID, message, narrative string) (Reply, error) {
	var header, recent string
	if d.memory != nil {
		var err error
		if header, err = d.memory.BuildContextHeader(ctx, userID); err != nil {
			d.logger.Warn().Err(err).Str("user_id", userID).Msg("memory header unavailable")
		}
		if recent, err = d.memory.BuildRecentTranscript(ctx, userID, d.limit); err != nil {
			d.logger.Warn().Err(err).Str("user_id", userID).Msg("recent transcript unavailable")
		}
	}

	text, err := llm.GenerateText(ctx, d.client, BuildChatPrompt(header, narrative, recent, message))
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Suggestions: []string{}}, nil
}

// BuildChatPrompt assembles the general chat prompt. Blank sections are skipped.
func BuildChatPrompt(header, narrative, recent, message string) string {
	var b strings.Builder
	b.WriteString("You are a friendly personal finance assistant inside an expense-tracking app. ")
	b.WriteString("Answer concisely and ground advice in the user's data when it is available.\n\n")
	if h := strings.TrimSpace(header); h != "" {
		b.WriteString(h)
		b.WriteString("\n\n")
	}
	if n := strings.TrimSpace(narrative); n != "" {
		b.WriteString("User Financial Context:\n")
		b.WriteString(n)
		b.WriteString("\n\n")
	}
	if r := strings.TrimSpace(recent); r != "" {
		b.WriteString("Recent messages:\n")
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	b.WriteString("User message: ")
	b.WriteString(message)
	return b.String()
}
