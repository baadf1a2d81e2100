package note

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
)

// Create runs the ingest policy, embeds the note content, and stores the
// note. A policy rejection surfaces as ErrRejectedByPolicy with the
// policy's reason attached.
func (u *UseCase) Create(ctx context.Context, title, content string, tags []string) (*model.Note, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, goerr.New("note content is empty")
	}
	if title == "" {
		title = firstLine(content)
	}

	now := time.Now()
	n := &model.Note{
		ID:        model.NewNoteID(),
		Title:     title,
		Content:   content,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if u.policy != nil {
		decision, err := u.policy.Evaluate(ctx, n)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to evaluate ingest policy")
		}
		if !decision.Allow {
			return nil, goerr.Wrap(ErrRejectedByPolicy, decision.Reason)
		}
		decision.Apply(n)
	}

	embedding, err := u.search.Embed(ctx, n.Title+"\n"+n.Content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed note")
	}
	n.Embedding = embedding

	if err := u.repo.PutNote(ctx, n); err != nil {
		return nil, goerr.Wrap(err, "failed to store note")
	}

	if u.bus != nil {
		u.bus.Notify(ctx, model.NewNotification(model.ContextNotes, model.TypeNoteUpserted, &model.NoteUpsert{
			NoteID: n.ID,
			Title:  n.Title,
		}))
	}

	return n, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	const maxTitle = 80
	if len(s) > maxTitle {
		s = s[:maxTitle]
	}
	return strings.TrimSpace(s)
}
