package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.New(context.Background(), projectID, databaseID)
	gt.NoError(t, err)

	return repo
}

func TestFirestoreConversationRoundTrip(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := model.NewConversation("room-firestore-test", model.InterfaceCLI)
	gt.NoError(t, repo.CreateConversation(ctx, conv))

	turn := &model.Turn{
		ID:        model.NewTurnID(),
		Timestamp: time.Now(),
		Query:     "What did I write about raft?",
		Response:  "You have two notes on raft consensus.",
		UserID:    "u1",
	}
	gt.NoError(t, repo.AddTurn(ctx, conv.ID, turn))

	conv.ActiveTurns = append(conv.ActiveTurns, turn)
	conv.UpdatedAt = time.Now()
	gt.NoError(t, repo.UpdateConversation(ctx, conv))

	got, err := repo.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.ID, conv.ID)
	gt.Equal(t, got.RoomID, "room-firestore-test")
	gt.A(t, got.ActiveTurns).Length(1)
	gt.Equal(t, got.ActiveTurns[0].Query, turn.Query)
	gt.Equal(t, got.ActiveTurns[0].Response, turn.Response)

	gt.NoError(t, repo.DeleteConversation(ctx, conv.ID))
	_, err = repo.GetConversation(ctx, conv.ID)
	gt.Error(t, err)
}

func TestFirestoreSummaries(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := model.NewConversation("room-summary-test", model.InterfaceCLI)
	gt.NoError(t, repo.CreateConversation(ctx, conv))
	defer func() {
		gt.NoError(t, repo.DeleteConversation(ctx, conv.ID))
	}()

	first := &model.Summary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		Content:        "Discussed raft leader election.",
		CreatedAt:      time.Now().Add(-time.Minute),
		CoveredTurnIDs: []model.TurnID{model.NewTurnID()},
	}
	second := &model.Summary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		Content:        "Discussed log compaction.",
		CreatedAt:      time.Now(),
		CoveredTurnIDs: []model.TurnID{model.NewTurnID()},
	}
	gt.NoError(t, repo.AddSummary(ctx, conv.ID, first))
	gt.NoError(t, repo.AddSummary(ctx, conv.ID, second))

	summaries, err := repo.GetSummaries(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, summaries).Length(2)
	gt.Equal(t, summaries[0].Content, first.Content)
	gt.Equal(t, summaries[1].Content, second.Content)
}

func TestFirestoreRecentConversations(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	older := model.NewConversation("room-recent-older", model.InterfaceCLI)
	older.UpdatedAt = time.Now().Add(-time.Hour)
	gt.NoError(t, repo.CreateConversation(ctx, older))
	newer := model.NewConversation("room-recent-newer", model.InterfaceCLI)
	newer.UpdatedAt = time.Now()
	gt.NoError(t, repo.CreateConversation(ctx, newer))
	defer func() {
		gt.NoError(t, repo.DeleteConversation(ctx, older.ID))
		gt.NoError(t, repo.DeleteConversation(ctx, newer.ID))
	}()

	convs, err := repo.GetRecentConversations(ctx, 10)
	gt.NoError(t, err)
	gt.A(t, convs).Longer(1)

	// Newest first; our two rooms must appear in that order
	var rooms []string
	for _, c := range convs {
		if c.RoomID == "room-recent-newer" || c.RoomID == "room-recent-older" {
			rooms = append(rooms, c.RoomID)
		}
	}
	gt.Equal(t, rooms, []string{"room-recent-newer", "room-recent-older"})
}

func TestFirestoreNoteSearch(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	embedding := make(firestore.Vector32, 128)
	embedding[0] = 1.0

	note := &model.Note{
		ID:        model.NewNoteID(),
		Title:     "raft consensus",
		Content:   "Leader election uses randomized timeouts.",
		Tags:      []string{"distributed-systems"},
		Embedding: embedding,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutNote(ctx, note))

	results, err := repo.SearchSimilarNotes(ctx, embedding, 3)
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)
}

func TestFirestoreProfile(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	profile := &model.Profile{
		UserID:      "test-user",
		DisplayName: "Test User",
		Bio:         "Distributed systems enthusiast",
		Interests:   []string{"raft", "gossip protocols"},
	}
	gt.NoError(t, repo.PutProfile(ctx, profile))

	got, err := repo.GetProfile(ctx, "test-user")
	gt.NoError(t, err)
	gt.Equal(t, got.DisplayName, "Test User")
	gt.A(t, got.Interests).Length(2)
}
