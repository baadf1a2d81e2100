package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
)

// Summarizer condenses a batch of turns into prose. Implementations must be
// side-effect free; failures are treated as retryable by the manager.
type Summarizer interface {
	Summarize(ctx context.Context, turns []*model.Turn) (string, error)
}

// Config bounds the three conversation tiers
type Config struct {
	MaxActiveTurns   int
	SummaryTurnCount int
	MaxSummaries     int
	MaxArchivedTurns int
}

func DefaultConfig() Config {
	return Config{
		MaxActiveTurns:   10,
		SummaryTurnCount: 5,
		MaxSummaries:     5,
		MaxArchivedTurns: 100,
	}
}

func (c Config) validate() error {
	if c.MaxActiveTurns <= 0 || c.SummaryTurnCount <= 0 || c.MaxSummaries <= 0 || c.MaxArchivedTurns < 0 {
		return goerr.New("invalid memory config",
			goerr.V("max_active_turns", c.MaxActiveTurns),
			goerr.V("summary_turn_count", c.SummaryTurnCount),
			goerr.V("max_summaries", c.MaxSummaries),
			goerr.V("max_archived_turns", c.MaxArchivedTurns))
	}
	return nil
}

// Manager owns the active/summary/archive tiers of each conversation and
// produces prompt-ready history text. Tier transitions happen as a side
// effect of AddTurn.
type Manager struct {
	repo       repository.Repository
	summarizer Summarizer
	cfg        Config

	mu    sync.Mutex
	convs map[model.ConversationID]*convState
}

// convState serializes mutation per conversation
type convState struct {
	mu   sync.Mutex
	conv *model.Conversation
}

// New creates a memory manager backed by the given repository and summarizer
func New(repo repository.Repository, summarizer Summarizer, cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		repo:       repo,
		summarizer: summarizer,
		cfg:        cfg,
		convs:      make(map[model.ConversationID]*convState),
	}, nil
}

// CreateConversation creates and persists a new conversation for the room
func (m *Manager) CreateConversation(ctx context.Context, roomID string, ifType model.InterfaceType) (*model.Conversation, error) {
	conv := model.NewConversation(roomID, ifType)
	if err := m.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.convs[conv.ID] = &convState{conv: conv}
	m.mu.Unlock()

	return conv, nil
}

// GetConversation returns the current in-memory view of a conversation,
// loading it from the repository on first access.
func (m *Manager) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	st, err := m.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.conv, nil
}

// DeleteConversation removes a conversation from the repository and drops
// its cached state.
func (m *Manager) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	if err := m.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.convs, id)
	m.mu.Unlock()
	return nil
}

// Register subscribes the manager to deletion notifications so cached state
// for conversations deleted elsewhere is dropped. Returns the unsubscriber.
func (m *Manager) Register(b *bus.Bus) func() {
	return b.Subscribe(model.ContextConversation, model.TypeConversationDeleted, m.handleDeleted)
}

func (m *Manager) handleDeleted(ctx context.Context, msg *model.Message) (any, error) {
	del, ok := msg.Payload.(*model.ConversationDeleted)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMessage, "unexpected payload",
			goerr.V("type", msg.Type))
	}

	m.mu.Lock()
	delete(m.convs, del.ConversationID)
	m.mu.Unlock()
	return nil, nil
}

func (m *Manager) state(ctx context.Context, id model.ConversationID) (*convState, error) {
	m.mu.Lock()
	if st, ok := m.convs[id]; ok {
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()

	conv, err := m.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.convs[id]; ok {
		return st, nil
	}
	st := &convState{conv: conv}
	m.convs[id] = st
	return st, nil
}

// AddTurn appends a turn to the active tier and runs tier promotion. When
// the active tier overflows, the oldest SummaryTurnCount turns are condensed
// into one summary; when summaries overflow, the oldest summary's covered
// turns move to the archive, which is trimmed from the front. If
// summarization fails the promotion is skipped and retried on the next
// AddTurn; the turn itself is always appended.
func (m *Manager) AddTurn(ctx context.Context, id model.ConversationID, turn *model.Turn) error {
	st, err := m.state(ctx, id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if turn.ID == "" {
		turn.ID = model.NewTurnID()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	if err := m.repo.AddTurn(ctx, id, turn); err != nil {
		return goerr.Wrap(err, "failed to persist turn", goerr.V("conversation_id", id))
	}

	conv := st.conv
	conv.ActiveTurns = append(conv.ActiveTurns, turn)

	for len(conv.ActiveTurns) > m.cfg.MaxActiveTurns {
		if !m.promote(ctx, conv) {
			break
		}
	}

	conv.UpdatedAt = time.Now()
	if err := m.repo.UpdateConversation(ctx, conv); err != nil {
		return goerr.Wrap(err, "failed to persist conversation state", goerr.V("conversation_id", id))
	}

	return nil
}

// promote moves the oldest active turns into a new summary. Returns false
// when summarization failed and the promotion must be retried later.
func (m *Manager) promote(ctx context.Context, conv *model.Conversation) bool {
	logger := logging.From(ctx)

	count := m.cfg.SummaryTurnCount
	if count > len(conv.ActiveTurns) {
		count = len(conv.ActiveTurns)
	}
	batch := conv.ActiveTurns[:count]

	content, err := m.summarizer.Summarize(ctx, batch)
	if err != nil {
		logger.Warn("summarization failed, promotion deferred",
			"conversation_id", conv.ID, "error", err)
		return false
	}

	covered := make([]model.TurnID, count)
	for i, t := range batch {
		covered[i] = t.ID
	}
	summary := &model.Summary{
		ID:             model.NewSummaryID(),
		ConversationID: conv.ID,
		Content:        content,
		CreatedAt:      time.Now(),
		CoveredTurnIDs: covered,
	}

	if err := m.repo.AddSummary(ctx, conv.ID, summary); err != nil {
		logger.Warn("failed to persist summary, promotion deferred",
			"conversation_id", conv.ID, "error", err)
		return false
	}

	conv.ActiveTurns = append([]*model.Turn{}, conv.ActiveTurns[count:]...)
	conv.Summaries = append(conv.Summaries, summary)

	for len(conv.Summaries) > m.cfg.MaxSummaries {
		m.demote(ctx, conv)
	}

	return true
}

// demote drops the oldest summary and moves its covered turns into the
// archive tier. The archive is trimmed from the front; trimmed turns are
// discarded irrecoverably.
func (m *Manager) demote(ctx context.Context, conv *model.Conversation) {
	oldest := conv.Summaries[0]
	conv.Summaries = append([]*model.Summary{}, conv.Summaries[1:]...)

	turns, err := m.repo.GetTurns(ctx, conv.ID, oldest.CoveredTurnIDs)
	if err != nil {
		logging.From(ctx).Warn("failed to load covered turns for archival",
			"conversation_id", conv.ID, "summary_id", oldest.ID, "error", err)
	}
	conv.ArchivedTurns = append(conv.ArchivedTurns, turns...)

	if excess := len(conv.ArchivedTurns) - m.cfg.MaxArchivedTurns; excess > 0 {
		conv.ArchivedTurns = append([]*model.Turn{}, conv.ArchivedTurns[excess:]...)
	}
}
