package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
)

// Export writes the full conversation as JSON to object storage and
// returns the object key.
func (u *UseCase) Export(ctx context.Context, id model.ConversationID) (string, error) {
	if u.storage == nil {
		return "", goerr.New("storage is not configured")
	}

	conv, err := u.repo.GetConversation(ctx, id)
	if err != nil {
		return "", goerr.Wrap(err, "failed to load conversation", goerr.V("conversation_id", id))
	}

	key := fmt.Sprintf("conversations/%s.json", id)
	w, err := u.storage.Put(ctx, key)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open storage writer", goerr.V("key", key))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(conv); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to encode conversation", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize export", goerr.V("key", key))
	}
	return key, nil
}
