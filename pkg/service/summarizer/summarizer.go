package summarizer

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/adapter"
	"github.com/m-mizutani/noctua/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

var summarizePromptTmpl = template.Must(template.New("summarize").Parse(summarizePromptRaw))

// Service condenses conversation turns into prose using Gemini
type Service struct {
	gemini adapter.Gemini
}

// New creates a new summarizer service
func New(gemini adapter.Gemini) *Service {
	return &Service{gemini: gemini}
}

// Summarize condenses the given turns into a short digest. It has no side
// effects; errors propagate to the caller, which treats them as retryable.
func (s *Service) Summarize(ctx context.Context, turns []*model.Turn) (string, error) {
	if len(turns) == 0 {
		return "", goerr.New("no turns to summarize")
	}

	var conversation strings.Builder
	for _, t := range turns {
		conversation.WriteString("User: " + t.Query + "\n")
		conversation.WriteString("Assistant: " + t.Response + "\n\n")
	}

	var buf bytes.Buffer
	if err := summarizePromptTmpl.Execute(&buf, map[string]any{
		"Conversation": conversation.String(),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute summarize prompt template")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an assistant maintaining a personal knowledge base.", genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := s.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no summary generated")
	}

	var summary strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			summary.WriteString(part.Text)
		}
	}

	if summary.Len() == 0 {
		return "", goerr.New("empty summary generated")
	}

	return summary.String(), nil
}
