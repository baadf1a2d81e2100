package note

import (
	"context"

	"github.com/m-mizutani/noctua/pkg/model"
)

// Search returns the notes most similar to the query text
func (u *UseCase) Search(ctx context.Context, query string, limit int) ([]*model.NoteRef, error) {
	return u.search.Search(ctx, query, limit)
}

// List returns stored notes in reverse chronological order
func (u *UseCase) List(ctx context.Context, offset, limit int) ([]*model.Note, error) {
	return u.repo.ListNotes(ctx, offset, limit)
}

// Get returns a single note by ID
func (u *UseCase) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	return u.repo.GetNote(ctx, id)
}
