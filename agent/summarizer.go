// Rolling conversation summaries kept fresh after each turn
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrivenlab/scriven/pkg/llm"
)

const summaryPrompt = `You maintain a running summary of a conversation between a user and their
workspace assistant. Fold the latest exchange into the summary. Keep it under
150 words, keep concrete facts (names, page titles, decisions), drop
pleasantries. Reply with the updated summary only.`

// TurnSummarizer produces rolling summaries with a small model call
type TurnSummarizer struct {
	provider    llm.Provider
	model       string
	temperature float64
}

// NewTurnSummarizer builds a summarizer on the given provider. An empty model
// falls back to whatever the provider's default handling does with "".
func NewTurnSummarizer(provider llm.Provider, model string) *TurnSummarizer {
	return &TurnSummarizer{provider: provider, model: model, temperature: 0.2}
}

// Summarize folds one exchange into the prior summary
func (s *TurnSummarizer) Summarize(ctx context.Context, prior, userText, assistantText string) (string, error) {
	var b strings.Builder
	if prior != "" {
		fmt.Fprintf(&b, "Current summary:\n%s\n\n", prior)
	}
	fmt.Fprintf(&b, "Latest exchange:\nuser: %s\nassistant: %s", userText, assistantText)

	resp, err := s.provider.Chat(ctx, &llm.ChatRequest{
		Model: s.model,
		Messages: []llm.Message{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: s.temperature,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return "", fmt.Errorf("summary call returned no text")
	}
	return text, nil
}
