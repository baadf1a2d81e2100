package model

import (
	"time"
	"unicode/utf8"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type NoteID string

// NewNoteID generates a new unique NoteID
func NewNoteID() NoteID {
	return NoteID(uuid.New().String())
}

// Note is a stored knowledge entry with its embedding for vector search
type Note struct {
	ID      NoteID
	Title   string
	Content string
	Tags    []string

	// Do not save the embedding in exported JSON, it is query infrastructure
	Embedding firestore.Vector32 `json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Excerpt returns the leading part of the note content for prompt assembly.
// The cut never splits a multi-byte rune.
func (n *Note) Excerpt(maxLen int) string {
	if maxLen <= 0 || len(n.Content) <= maxLen {
		return n.Content
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(n.Content[cut]) {
		cut--
	}
	return n.Content[:cut] + "..."
}
