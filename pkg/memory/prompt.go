package memory

import (
	"context"
	"strings"

	"github.com/m-mizutani/noctua/pkg/model"
)

// estimateTokens is a bytes/4 heuristic, close enough for whole-turn
// truncation decisions.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func turnBlock(t *model.Turn) string {
	return "User: " + t.Query + "\nAssistant: " + t.Response
}

// ContextForPrompt renders the conversation history for prompt assembly:
// summaries oldest to newest, then active turns oldest to newest as
// "User:/Assistant:" blocks. When over maxTokens, whole blocks are dropped
// starting with the oldest active turn, then the oldest summary; a turn is
// never cut in the middle.
func (m *Manager) ContextForPrompt(ctx context.Context, id model.ConversationID, maxTokens int) (string, error) {
	st, err := m.state(ctx, id)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	summaries := make([]string, 0, len(st.conv.Summaries))
	for _, s := range st.conv.Summaries {
		summaries = append(summaries, s.Content)
	}
	turns := make([]string, 0, len(st.conv.ActiveTurns))
	for _, t := range st.conv.ActiveTurns {
		turns = append(turns, turnBlock(t))
	}

	total := 0
	for _, b := range summaries {
		total += estimateTokens(b)
	}
	for _, b := range turns {
		total += estimateTokens(b)
	}

	for total > maxTokens && len(turns) > 0 {
		total -= estimateTokens(turns[0])
		turns = turns[1:]
	}
	for total > maxTokens && len(summaries) > 0 {
		total -= estimateTokens(summaries[0])
		summaries = summaries[1:]
	}

	blocks := make([]string, 0, len(summaries)+len(turns))
	blocks = append(blocks, summaries...)
	blocks = append(blocks, turns...)

	return strings.Join(blocks, "\n\n"), nil
}
