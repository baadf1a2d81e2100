package notes

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/adapter"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
)

const (
	defaultLimit  = 5
	excerptLength = 400
)

// Service answers note-search requests over the bus using embedding-based
// vector search.
type Service struct {
	repo   repository.Repository
	gemini adapter.Gemini
}

// New creates a new note search service
func New(repo repository.Repository, gemini adapter.Gemini) *Service {
	return &Service{repo: repo, gemini: gemini}
}

// Register subscribes the service to the bus. The returned function
// unsubscribes it.
func (s *Service) Register(b *bus.Bus) func() {
	return b.Subscribe(model.ContextNotes, model.TypeNoteSearch, s.handleSearch)
}

func (s *Service) handleSearch(ctx context.Context, msg *model.Message) (any, error) {
	q, ok := msg.Payload.(*model.NoteSearchQuery)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMessage, "unexpected note search payload")
	}

	refs, err := s.Search(ctx, q.Query, q.Limit)
	if err != nil {
		return nil, err
	}
	return &model.NoteSearchResult{Notes: refs}, nil
}

// Search embeds the query text and returns the most similar notes
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*model.NoteRef, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	embedding, err := s.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	notes, err := s.repo.SearchSimilarNotes(ctx, embedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search notes")
	}

	refs := make([]*model.NoteRef, 0, len(notes))
	for i, note := range notes {
		refs = append(refs, &model.NoteRef{
			ID:      note.ID,
			Title:   note.Title,
			Excerpt: note.Excerpt(excerptLength),
			Tags:    note.Tags,
			// Results arrive ordered by similarity; expose the rank
			Score: 1.0 - float64(i)/float64(limit),
		})
	}
	return refs, nil
}

// Embed converts text into a Firestore vector
func (s *Service) Embed(ctx context.Context, text string) (firestore.Vector32, error) {
	resp, err := s.gemini.Embedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response")
	}
	return firestore.Vector32(resp.Embeddings[0].Values), nil
}
