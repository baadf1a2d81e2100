package history

import (
	"context"

	"github.com/m-mizutani/noctua/pkg/adapter"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
)

// UseCase provides conversation-history operations
type UseCase struct {
	repo    repository.Repository
	storage adapter.Storage
	bus     *bus.Bus
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage enables exporting conversations to object storage
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithBus announces deletions so other contexts can drop cached state
func WithBus(b *bus.Bus) Option {
	return func(uc *UseCase) {
		uc.bus = b
	}
}

// New creates a new history UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{repo: repo}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// List returns the most recently updated conversations, newest first
func (u *UseCase) List(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return u.repo.GetRecentConversations(ctx, limit)
}

// Show returns a conversation with all of its tiers loaded
func (u *UseCase) Show(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	return u.repo.GetConversation(ctx, id)
}

// Delete removes a conversation and its turns and summaries, then notifies
// the bus so long-lived holders of the conversation release it.
func (u *UseCase) Delete(ctx context.Context, id model.ConversationID) error {
	if err := u.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if u.bus != nil {
		u.bus.Notify(ctx, model.NewNotification(model.ContextConversation,
			model.TypeConversationDeleted, &model.ConversationDeleted{ConversationID: id}))
	}
	return nil
}
