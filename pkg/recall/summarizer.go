package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/recall/pkg/agent"
	"github.com/harun/recall/pkg/history"
	"github.com/harun/recall/pkg/trace"
)

const summarizeSystemPrompt = "You compress conversation logs. Reply with a short plain-text summary " +
	"of the conversation: the user's goals, what was tried, what worked and what failed. " +
	"No preamble, no markdown."

// ProviderSummarizer adapts a chat provider into a history.SummarizeFunc.
// The returned function renders the session transcript and asks the model
// for a rolling summary.
func ProviderSummarizer(p agent.Provider, model string, maxTokens int) history.SummarizeFunc {
	return func(ctx context.Context, hist []trace.Trace) (string, error) {
		if len(hist) == 0 {
			return "", nil
		}

		var b strings.Builder
		for _, tr := range hist {
			fmt.Fprintf(&b, "%s: %s\n", tr.Role, tr.Content)
		}

		resp, err := p.Generate(ctx, agent.Request{
			Model:        model,
			SystemPrompt: summarizeSystemPrompt,
			MaxTokens:    maxTokens,
			Messages: []agent.Message{
				{Role: trace.RoleUser, Content: b.String()},
			},
		})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Content), nil
	}
}
