package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/memory"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
)

// mockRepository is an in-memory Repository for manager tests
type mockRepository struct {
	convs     map[model.ConversationID]*model.Conversation
	turns     map[model.ConversationID]map[model.TurnID]*model.Turn
	summaries map[model.ConversationID][]*model.Summary
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		convs:     make(map[model.ConversationID]*model.Conversation),
		turns:     make(map[model.ConversationID]map[model.TurnID]*model.Turn),
		summaries: make(map[model.ConversationID][]*model.Summary),
	}
}

func (m *mockRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	m.convs[conv.ID] = conv
	m.turns[conv.ID] = make(map[model.TurnID]*model.Turn)
	return nil
}

func (m *mockRepository) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return nil, goerr.Wrap(repository.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	return conv, nil
}

func (m *mockRepository) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	m.convs[conv.ID] = conv
	return nil
}

func (m *mockRepository) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	delete(m.convs, id)
	delete(m.turns, id)
	delete(m.summaries, id)
	return nil
}

func (m *mockRepository) FindConversations(ctx context.Context, criteria repository.ConversationCriteria) ([]*model.Conversation, error) {
	return nil, nil
}

func (m *mockRepository) GetRecentConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return nil, nil
}

func (m *mockRepository) UpdateConversationMetadata(ctx context.Context, id model.ConversationID, metadata map[string]any) error {
	return nil
}

func (m *mockRepository) GetConversationMetadata(ctx context.Context, id model.ConversationID) (map[string]any, error) {
	return nil, nil
}

func (m *mockRepository) AddTurn(ctx context.Context, id model.ConversationID, turn *model.Turn) error {
	if m.turns[id] == nil {
		m.turns[id] = make(map[model.TurnID]*model.Turn)
	}
	m.turns[id][turn.ID] = turn
	return nil
}

func (m *mockRepository) GetTurns(ctx context.Context, id model.ConversationID, ids []model.TurnID) ([]*model.Turn, error) {
	var turns []*model.Turn
	for _, turnID := range ids {
		if t, ok := m.turns[id][turnID]; ok {
			turns = append(turns, t)
		}
	}
	return turns, nil
}

func (m *mockRepository) AddSummary(ctx context.Context, id model.ConversationID, summary *model.Summary) error {
	m.summaries[id] = append(m.summaries[id], summary)
	return nil
}

func (m *mockRepository) GetSummaries(ctx context.Context, id model.ConversationID) ([]*model.Summary, error) {
	return m.summaries[id], nil
}

func (m *mockRepository) PutNote(ctx context.Context, note *model.Note) error { return nil }

func (m *mockRepository) GetNote(ctx context.Context, id model.NoteID) (*model.Note, error) {
	return nil, nil
}

func (m *mockRepository) ListNotes(ctx context.Context, offset, limit int) ([]*model.Note, error) {
	return nil, nil
}

func (m *mockRepository) SearchSimilarNotes(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Note, error) {
	return nil, nil
}

func (m *mockRepository) PutProfile(ctx context.Context, profile *model.Profile) error { return nil }

func (m *mockRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return nil, nil
}

// mockSummarizer joins turn queries, or fails when failWith is set
type mockSummarizer struct {
	failWith error
	calls    int
}

func (m *mockSummarizer) Summarize(ctx context.Context, turns []*model.Turn) (string, error) {
	m.calls++
	if m.failWith != nil {
		return "", m.failWith
	}
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.Query
	}
	return "summary of: " + strings.Join(parts, ", "), nil
}

func newTurn(i int) *model.Turn {
	return &model.Turn{
		ID:        model.NewTurnID(),
		Timestamp: time.Now(),
		Query:     fmt.Sprintf("question %d", i),
		Response:  fmt.Sprintf("answer %d", i),
	}
}

func TestAddTurnPromotesOnOverflow(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.Config{
		MaxActiveTurns:   3,
		SummaryTurnCount: 2,
		MaxSummaries:     5,
		MaxArchivedTurns: 10,
	})
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-1", model.InterfaceCLI)
	gt.NoError(t, err)

	for i := range 4 {
		gt.NoError(t, mgr.AddTurn(ctx, conv.ID, newTurn(i)))
	}

	got, err := mgr.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, got.ActiveTurns).Length(2)
	gt.A(t, got.Summaries).Length(1)
	gt.A(t, got.Summaries[0].CoveredTurnIDs).Length(2)
	gt.S(t, got.Summaries[0].Content).Contains("question 0")
	gt.S(t, got.Summaries[0].Content).Contains("question 1")
}

func TestTierInvariantsUnderLongConversation(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	cfg := memory.Config{
		MaxActiveTurns:   4,
		SummaryTurnCount: 2,
		MaxSummaries:     3,
		MaxArchivedTurns: 5,
	}
	mgr, err := memory.New(repo, sum, cfg)
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-long", model.InterfaceCLI)
	gt.NoError(t, err)

	for i := range 50 {
		gt.NoError(t, mgr.AddTurn(ctx, conv.ID, newTurn(i)))

		got, err := mgr.GetConversation(ctx, conv.ID)
		gt.NoError(t, err)
		gt.True(t, len(got.ActiveTurns) <= cfg.MaxActiveTurns)
		gt.True(t, len(got.Summaries) <= cfg.MaxSummaries)
		gt.True(t, len(got.ArchivedTurns) <= cfg.MaxArchivedTurns)
	}
}

func TestSummarizationFailureDefersPromotion(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{failWith: errors.New("model unavailable")}
	mgr, err := memory.New(repo, sum, memory.Config{
		MaxActiveTurns:   3,
		SummaryTurnCount: 2,
		MaxSummaries:     5,
		MaxArchivedTurns: 10,
	})
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-fail", model.InterfaceCLI)
	gt.NoError(t, err)

	// Promotion fails but every turn is still appended
	for i := range 5 {
		gt.NoError(t, mgr.AddTurn(ctx, conv.ID, newTurn(i)))
	}

	got, err := mgr.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, got.ActiveTurns).Length(5)
	gt.A(t, got.Summaries).Length(0)

	// Once the summarizer recovers, the next AddTurn catches up
	sum.failWith = nil
	gt.NoError(t, mgr.AddTurn(ctx, conv.ID, newTurn(5)))

	got, err = mgr.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.True(t, len(got.ActiveTurns) <= 3)
	gt.A(t, got.Summaries).Longer(0)
}

func TestDemoteMovesCoveredTurnsToArchive(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.Config{
		MaxActiveTurns:   2,
		SummaryTurnCount: 2,
		MaxSummaries:     1,
		MaxArchivedTurns: 4,
	})
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-archive", model.InterfaceCLI)
	gt.NoError(t, err)

	// Each promotion covers 2 turns; the second promotion overflows the
	// single summary slot and pushes the first batch into the archive.
	for i := range 6 {
		gt.NoError(t, mgr.AddTurn(ctx, conv.ID, newTurn(i)))
	}

	got, err := mgr.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, got.Summaries).Length(1)
	gt.A(t, got.ArchivedTurns).Longer(0)
	gt.Equal(t, got.ArchivedTurns[0].Query, "question 0")
}

func TestContextForPromptRoundTrip(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.DefaultConfig())
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-rt", model.InterfaceCLI)
	gt.NoError(t, err)

	turn := &model.Turn{
		Query:    "What is a vector clock?",
		Response: "A logical clock capturing causality between events.",
	}
	gt.NoError(t, mgr.AddTurn(ctx, conv.ID, turn))

	text, err := mgr.ContextForPrompt(ctx, conv.ID, 4096)
	gt.NoError(t, err)
	gt.S(t, text).Contains("User: What is a vector clock?")
	gt.S(t, text).Contains("Assistant: A logical clock capturing causality between events.")
}

func TestContextForPromptTruncatesOldestFirst(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.DefaultConfig())
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-trunc", model.InterfaceCLI)
	gt.NoError(t, err)

	long := strings.Repeat("x", 400)
	for i := range 5 {
		gt.NoError(t, mgr.AddTurn(ctx, conv.ID, &model.Turn{
			Query:    fmt.Sprintf("question %d %s", i, long),
			Response: "short answer",
		}))
	}

	// Budget fits roughly two turns; the newest must survive whole
	text, err := mgr.ContextForPrompt(ctx, conv.ID, 250)
	gt.NoError(t, err)
	gt.S(t, text).Contains("question 4")
	gt.S(t, text).NotContains("question 0")

	// A kept turn is never cut in the middle
	gt.True(t, strings.Count(text, "User: ") == strings.Count(text, "\nAssistant: "))
}

func TestDeleteConversation(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.DefaultConfig())
	gt.NoError(t, err)
	ctx := context.Background()

	conv, err := mgr.CreateConversation(ctx, "room-del", model.InterfaceCLI)
	gt.NoError(t, err)
	gt.NoError(t, mgr.DeleteConversation(ctx, conv.ID))

	_, err = mgr.GetConversation(ctx, conv.ID)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestDeletionNotificationDropsCachedState(t *testing.T) {
	repo := newMockRepository()
	sum := &mockSummarizer{}
	mgr, err := memory.New(repo, sum, memory.DefaultConfig())
	gt.NoError(t, err)
	ctx := context.Background()

	b := bus.New()
	defer b.Close()
	mgr.Register(b)

	conv, err := mgr.CreateConversation(ctx, "room-notify-del", model.InterfaceCLI)
	gt.NoError(t, err)

	// Delete out-of-band, then announce it over the bus
	gt.NoError(t, repo.DeleteConversation(ctx, conv.ID))

	delivered := make(chan struct{}, 1)
	b.Subscribe(model.ContextQuery, model.TypeConversationDeleted, func(ctx context.Context, msg *model.Message) (any, error) {
		delivered <- struct{}{}
		return nil, nil
	})
	b.Notify(ctx, model.NewNotification(model.ContextConversation,
		model.TypeConversationDeleted, &model.ConversationDeleted{ConversationID: conv.ID}))
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("deletion notification not delivered")
	}

	// The cached view is gone; a reload hits the repository and misses
	_, err = mgr.GetConversation(ctx, conv.ID)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}
