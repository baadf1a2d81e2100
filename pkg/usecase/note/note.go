package note

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/repository"
	"github.com/m-mizutani/noctua/pkg/source/notes"
	"github.com/m-mizutani/noctua/pkg/workflow"
)

// ErrRejectedByPolicy is returned by Create when the ingest policy
// refuses the note.
var ErrRejectedByPolicy = goerr.New("note rejected by ingest policy")

// UseCase provides note-related operations
type UseCase struct {
	repo   repository.Repository
	search *notes.Service
	policy *workflow.Policy
	bus    *bus.Bus
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithPolicy gates note creation with an ingest policy
func WithPolicy(policy *workflow.Policy) Option {
	return func(uc *UseCase) {
		uc.policy = policy
	}
}

// WithBus publishes a notification for every created note
func WithBus(b *bus.Bus) Option {
	return func(uc *UseCase) {
		uc.bus = b
	}
}

// New creates a new note UseCase instance
func New(repo repository.Repository, search *notes.Service, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:   repo,
		search: search,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}
