package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/bus"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
)

// Service answers profile-fetch requests over the bus.
type Service struct {
	repo repository.Repository
}

func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// Register subscribes the service to the bus. The returned function
// unsubscribes it.
func (s *Service) Register(b *bus.Bus) func() {
	return b.Subscribe(model.ContextProfile, model.TypeProfileFetch, s.handleFetch)
}

func (s *Service) handleFetch(ctx context.Context, msg *model.Message) (any, error) {
	q, ok := msg.Payload.(*model.ProfileFetchQuery)
	if !ok {
		return nil, goerr.Wrap(model.ErrInvalidMessage, "unexpected profile fetch payload")
	}

	profile, err := s.repo.GetProfile(ctx, q.UserID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch profile", goerr.V("user_id", q.UserID))
	}

	return &model.ProfileFetchResult{
		Profile: &model.ProfileRef{
			UserID:      profile.UserID,
			DisplayName: profile.DisplayName,
			Summary:     summarize(profile),
		},
	}, nil
}

// summarize renders a compact one-paragraph description of the profile
// for inclusion in a model prompt.
func summarize(p *model.Profile) string {
	var parts []string
	if p.Bio != "" {
		parts = append(parts, p.Bio)
	}
	if len(p.Interests) > 0 {
		parts = append(parts, fmt.Sprintf("Interests: %s.", strings.Join(p.Interests, ", ")))
	}
	keys := make([]string, 0, len(p.Preferences))
	for k := range p.Preferences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("Prefers %s: %s.", k, p.Preferences[k]))
	}
	return strings.Join(parts, " ")
}
