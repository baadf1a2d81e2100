package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrNoHandler      = goerr.New("no handler registered for request")
	ErrTimeout        = goerr.New("request timed out")
	ErrInvalidMessage = goerr.New("invalid message")
)

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type CorrelationID string

// NewCorrelationID generates a new unique CorrelationID
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

// ContextID identifies an independently-owned context connected to the bus
type ContextID string

const (
	ContextNotes        ContextID = "notes"
	ContextProfile      ContextID = "profile"
	ContextExternal     ContextID = "external"
	ContextConversation ContextID = "conversation"
	ContextQuery        ContextID = "query"
)

type MessageKind string

const (
	KindNotification MessageKind = "notification"
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
)

// MessageType is a closed set of message kinds exchanged over the bus
type MessageType string

const (
	TypeNoteSearch          MessageType = "note.search"
	TypeProfileFetch        MessageType = "profile.fetch"
	TypeExternalSearch      MessageType = "external.search"
	TypeConversationUpdated MessageType = "conversation.updated"
	TypeConversationDeleted MessageType = "conversation.deleted"
	TypeNoteUpserted        MessageType = "note.upserted"
)

func ValidMessageTypes() []MessageType {
	return []MessageType{
		TypeNoteSearch,
		TypeProfileFetch,
		TypeExternalSearch,
		TypeConversationUpdated,
		TypeConversationDeleted,
		TypeNoteUpserted,
	}
}

// Validate checks if the message type is one of the known types
func (t MessageType) Validate() error {
	for _, v := range ValidMessageTypes() {
		if t == v {
			return nil
		}
	}
	return goerr.Wrap(ErrInvalidMessage, "unknown message type", goerr.V("type", t))
}

// Message is the unit of communication between contexts. Requests and their
// responses share a CorrelationID; notifications have none.
type Message struct {
	ID            MessageID
	Kind          MessageKind
	Type          MessageType
	SourceContext ContextID
	TargetContext ContextID
	CorrelationID CorrelationID
	Payload       any
	Timestamp     time.Time
}

// NewNotification creates a notification message from the given context
func NewNotification(source ContextID, msgType MessageType, payload any) *Message {
	return &Message{
		ID:            NewMessageID(),
		Kind:          KindNotification,
		Type:          msgType,
		SourceContext: source,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// NewRequest creates a request message addressed to a single target context
func NewRequest(source, target ContextID, msgType MessageType, payload any) *Message {
	return &Message{
		ID:            NewMessageID(),
		Kind:          KindRequest,
		Type:          msgType,
		SourceContext: source,
		TargetContext: target,
		CorrelationID: NewCorrelationID(),
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// NewResponse creates a response message correlated to the given request
func NewResponse(req *Message, payload any) *Message {
	return &Message{
		ID:            NewMessageID(),
		Kind:          KindResponse,
		Type:          req.Type,
		SourceContext: req.TargetContext,
		TargetContext: req.SourceContext,
		CorrelationID: req.CorrelationID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// NoteSearchQuery is the payload of TypeNoteSearch requests
type NoteSearchQuery struct {
	Query string
	Limit int
}

// NoteSearchResult is the payload of TypeNoteSearch responses
type NoteSearchResult struct {
	Notes []*NoteRef
}

// ProfileFetchQuery is the payload of TypeProfileFetch requests
type ProfileFetchQuery struct {
	UserID string
}

// ProfileFetchResult is the payload of TypeProfileFetch responses
type ProfileFetchResult struct {
	Profile *ProfileRef
}

// ExternalSearchQuery is the payload of TypeExternalSearch requests
type ExternalSearchQuery struct {
	Query string
	Limit int
}

// ExternalSearchResult is the payload of TypeExternalSearch responses
type ExternalSearchResult struct {
	Sources []*ExternalRef
}

// ConversationUpdate is the payload of TypeConversationUpdated notifications
type ConversationUpdate struct {
	ConversationID ConversationID
	TurnID         TurnID
	RoomID         string
}

// ConversationDeleted is the payload of TypeConversationDeleted
// notifications. Holders of cached conversation state drop it on receipt.
type ConversationDeleted struct {
	ConversationID ConversationID
}

// NoteUpsert is the payload of TypeNoteUpserted notifications
type NoteUpsert struct {
	NoteID NoteID
	Title  string
}
