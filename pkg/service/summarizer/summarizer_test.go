package summarizer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/service/summarizer"
	"google.golang.org/genai"
)

type mockGemini struct {
	generateFunc  func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	embeddingFunc func(ctx context.Context, text string) (*genai.EmbedContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, text string) (*genai.EmbedContentResponse, error) {
	if m.embeddingFunc != nil {
		return m.embeddingFunc(ctx, text)
	}
	return nil, errors.New("not implemented")
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	var captured string
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			captured = contents[0].Parts[0].Text
			return textResponse("The user asked about raft; the assistant explained leader election."), nil
		},
	}

	svc := summarizer.New(mock)
	turns := []*model.Turn{
		{Query: "How does raft elect a leader?", Response: "Through randomized election timeouts."},
		{Query: "What about split votes?", Response: "A new term restarts the election."},
	}

	summary, err := svc.Summarize(context.Background(), turns)
	gt.NoError(t, err)
	gt.S(t, summary).Contains("leader election")

	// Both turns are present in the prompt sent to the model
	gt.S(t, captured).Contains("How does raft elect a leader?")
	gt.S(t, captured).Contains("What about split votes?")
}

func TestSummarizeEmptyTurns(t *testing.T) {
	svc := summarizer.New(&mockGemini{})
	_, err := svc.Summarize(context.Background(), nil)
	gt.Error(t, err)
}

func TestSummarizeModelFailure(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("quota exceeded")
		},
	}

	svc := summarizer.New(mock)
	_, err := svc.Summarize(context.Background(), []*model.Turn{{Query: "q", Response: "a"}})
	gt.Error(t, err)
}

func TestSummarizeEmptyResponse(t *testing.T) {
	mock := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(""), nil
		},
	}

	svc := summarizer.New(mock)
	_, err := svc.Summarize(context.Background(), []*model.Turn{{Query: "q", Response: "a"}})
	gt.Error(t, err)
}
