package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
)

var ErrNotFound = goerr.New("not found")

// ConversationCriteria filters FindConversations. Zero-value fields are
// ignored.
type ConversationCriteria struct {
	RoomID        string
	InterfaceType model.InterfaceType
	Since         time.Time
}

// Repository defines the interface for persisting conversations, notes and
// profiles
type Repository interface {
	// CreateConversation saves a new conversation
	CreateConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation retrieves a conversation with its tiers assembled
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// UpdateConversation persists the current tier state of a conversation
	UpdateConversation(ctx context.Context, conv *model.Conversation) error

	// DeleteConversation removes a conversation and its turns and summaries
	DeleteConversation(ctx context.Context, id model.ConversationID) error

	// FindConversations retrieves conversations matching the criteria
	FindConversations(ctx context.Context, criteria ConversationCriteria) ([]*model.Conversation, error)

	// GetRecentConversations retrieves conversations ordered by last update
	GetRecentConversations(ctx context.Context, limit int) ([]*model.Conversation, error)

	// UpdateConversationMetadata replaces the metadata map of a conversation
	UpdateConversationMetadata(ctx context.Context, id model.ConversationID, metadata map[string]any) error

	// GetConversationMetadata retrieves the metadata map of a conversation
	GetConversationMetadata(ctx context.Context, id model.ConversationID) (map[string]any, error)

	// AddTurn appends a turn to a conversation
	AddTurn(ctx context.Context, id model.ConversationID, turn *model.Turn) error

	// GetTurns retrieves turns by ID; nil ids means all turns
	GetTurns(ctx context.Context, id model.ConversationID, ids []model.TurnID) ([]*model.Turn, error)

	// AddSummary appends a summary to a conversation
	AddSummary(ctx context.Context, id model.ConversationID, summary *model.Summary) error

	// GetSummaries retrieves summaries of a conversation, oldest first
	GetSummaries(ctx context.Context, id model.ConversationID) ([]*model.Summary, error)

	// PutNote saves a note
	PutNote(ctx context.Context, note *model.Note) error

	// GetNote retrieves a note by ID
	GetNote(ctx context.Context, id model.NoteID) (*model.Note, error)

	// ListNotes retrieves notes with pagination
	ListNotes(ctx context.Context, offset, limit int) ([]*model.Note, error)

	// SearchSimilarNotes performs vector search over note embeddings
	SearchSimilarNotes(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Note, error)

	// PutProfile saves a user profile
	PutProfile(ctx context.Context, profile *model.Profile) error

	// GetProfile retrieves a user profile
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}
