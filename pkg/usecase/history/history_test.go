package history_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
	"github.com/m-mizutani/noctua/pkg/usecase/history"
)

type mockRepo struct {
	repository.Repository
	convs map[model.ConversationID]*model.Conversation
}

func (m *mockRepo) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return nil, goerr.Wrap(repository.ErrNotFound, "conversation not found")
	}
	return conv, nil
}

func (m *mockRepo) GetRecentConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	var out []*model.Conversation
	for _, conv := range m.convs {
		out = append(out, conv)
	}
	return out, nil
}

func (m *mockRepo) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	delete(m.convs, id)
	return nil
}

type memWriter struct {
	bytes.Buffer
	closed bool
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

type mockStorage struct {
	objects map[string]*memWriter
}

func (s *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	w := &memWriter{}
	s.objects[key] = w
	return w, nil
}

func (s *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	w, ok := s.objects[key]
	if !ok {
		return nil, goerr.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(w.Bytes())), nil
}

func TestExport(t *testing.T) {
	conv := model.NewConversation("room-1", model.InterfaceCLI)
	conv.ActiveTurns = []*model.Turn{
		{ID: model.NewTurnID(), Query: "what is raft?", Response: "a consensus algorithm"},
	}

	repo := &mockRepo{convs: map[model.ConversationID]*model.Conversation{conv.ID: conv}}
	storage := &mockStorage{objects: make(map[string]*memWriter)}
	uc := history.New(repo, history.WithStorage(storage))

	key, err := uc.Export(context.Background(), conv.ID)
	gt.NoError(t, err)
	gt.S(t, key).Contains(string(conv.ID))

	obj := storage.objects[key]
	gt.V(t, obj).NotNil()
	gt.True(t, obj.closed)
	gt.S(t, obj.String()).
		Contains("what is raft?").
		Contains("a consensus algorithm")
}

func TestExportWithoutStorage(t *testing.T) {
	uc := history.New(&mockRepo{convs: map[model.ConversationID]*model.Conversation{}})
	_, err := uc.Export(context.Background(), model.NewConversationID())
	gt.Error(t, err)
}

func TestDelete(t *testing.T) {
	conv := model.NewConversation("room-1", model.InterfaceCLI)
	repo := &mockRepo{convs: map[model.ConversationID]*model.Conversation{conv.ID: conv}}
	uc := history.New(repo)

	gt.NoError(t, uc.Delete(context.Background(), conv.ID))
	_, err := uc.Show(context.Background(), conv.ID)
	gt.Error(t, err)
}

func TestDeleteAnnouncesOverBus(t *testing.T) {
	conv := model.NewConversation("room-1", model.InterfaceCLI)
	repo := &mockRepo{convs: map[model.ConversationID]*model.Conversation{conv.ID: conv}}

	b := bus.New()
	defer b.Close()
	deleted := make(chan model.ConversationID, 1)
	b.Subscribe(model.ContextQuery, model.TypeConversationDeleted, func(ctx context.Context, msg *model.Message) (any, error) {
		deleted <- msg.Payload.(*model.ConversationDeleted).ConversationID
		return nil, nil
	})

	uc := history.New(repo, history.WithBus(b))
	gt.NoError(t, uc.Delete(context.Background(), conv.ID))

	select {
	case id := <-deleted:
		gt.Equal(t, id, conv.ID)
	case <-time.After(time.Second):
		t.Fatal("no deletion notification")
	}
}
