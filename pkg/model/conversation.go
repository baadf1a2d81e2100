package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type TurnID string

// NewTurnID generates a new unique TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

type SummaryID string

// NewSummaryID generates a new unique SummaryID
func NewSummaryID() SummaryID {
	return SummaryID(uuid.New().String())
}

// InterfaceType identifies the surface a conversation belongs to
type InterfaceType string

const (
	InterfaceCLI InterfaceType = "cli"
	InterfaceMCP InterfaceType = "mcp"
)

// Turn is one query/response exchange within a conversation. A turn is
// immutable once archived; only metadata may change while active.
type Turn struct {
	ID        TurnID
	Timestamp time.Time
	Query     string
	Response  string
	UserID    string
	UserName  string
	Metadata  map[string]any
}

// Summary condenses a batch of turns into prose. Produced only by the
// summarizer, never hand-edited.
type Summary struct {
	ID             SummaryID
	ConversationID ConversationID
	Content        string
	CreatedAt      time.Time
	CoveredTurnIDs []TurnID
}

// Conversation holds the tiered view of a long-running exchange: recent
// turns verbatim, older turns as summaries, and the oldest as an archive.
type Conversation struct {
	ID            ConversationID
	InterfaceType InterfaceType
	RoomID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	ActiveTurns   []*Turn
	Summaries     []*Summary
	ArchivedTurns []*Turn

	Metadata map[string]any
}

// NewConversation creates a conversation bound to the given room
func NewConversation(roomID string, ifType InterfaceType) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:            NewConversationID(),
		InterfaceType: ifType,
		RoomID:        roomID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      map[string]any{},
	}
}
