package query

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/utils/logging"
)

// gatheredContext holds the all-settled outcome of context gathering. Only
// a mandatory profile failure sets err; everything else degrades to empty.
type gatheredContext struct {
	notes    []*model.NoteRef
	profile  *model.ProfileRef
	external []*model.ExternalRef
	err      error
}

// gatherContext fans out to the note, profile, and external contexts
// concurrently and joins all of them. Each sub-request carries its own
// timeout so one slow collaborator cannot delay the others.
func (p *Processor) gatherContext(ctx context.Context, userQuery string, opts *Options) *gatheredContext {
	logger := logging.From(ctx)
	gathered := &gatheredContext{}

	if opts.Schema != nil && opts.Schema.ProfileRequired && opts.UserID == "" {
		gathered.err = goerr.Wrap(model.ErrContextUnavailable,
			"profile is required but no user is identified")
		return gathered
	}

	var wg sync.WaitGroup
	var profileErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		req := model.NewRequest(model.ContextQuery, model.ContextNotes, model.TypeNoteSearch, &model.NoteSearchQuery{
			Query: userQuery,
			Limit: defaultNoteLimit,
		})
		resp, err := p.bus.SendRequest(ctx, req, p.gatherTimeout)
		if err != nil {
			logger.Warn("note search unavailable, continuing without notes", "error", err)
			return
		}
		if result, ok := resp.Payload.(*model.NoteSearchResult); ok {
			gathered.notes = result.Notes
		}
	}()

	if opts.UserID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := model.NewRequest(model.ContextQuery, model.ContextProfile, model.TypeProfileFetch, &model.ProfileFetchQuery{
				UserID: opts.UserID,
			})
			resp, err := p.bus.SendRequest(ctx, req, p.gatherTimeout)
			if err != nil {
				profileErr = err
				return
			}
			if result, ok := resp.Payload.(*model.ProfileFetchResult); ok {
				gathered.profile = result.Profile
			}
		}()
	}

	if p.externalEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := model.NewRequest(model.ContextQuery, model.ContextExternal, model.TypeExternalSearch, &model.ExternalSearchQuery{
				Query: userQuery,
				Limit: defaultExternalLimit,
			})
			resp, err := p.bus.SendRequest(ctx, req, p.gatherTimeout)
			if err != nil {
				logger.Warn("external search unavailable, continuing without it", "error", err)
				return
			}
			if result, ok := resp.Payload.(*model.ExternalSearchResult); ok {
				gathered.external = result.Sources
			}
		}()
	}

	wg.Wait()

	if profileErr != nil {
		if opts.Schema != nil && opts.Schema.ProfileRequired {
			gathered.err = goerr.Wrap(model.ErrContextUnavailable, "profile fetch failed",
				goerr.V("user_id", opts.UserID), goerr.V("cause", profileErr.Error()))
		} else {
			logger.Warn("profile unavailable, continuing without it", "error", profileErr)
		}
	}

	return gathered
}
