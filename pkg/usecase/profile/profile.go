package profile

import (
	"context"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
	"gopkg.in/yaml.v3"
)

// UseCase provides profile-related operations
type UseCase struct {
	repo repository.Repository
}

// New creates a new profile UseCase instance
func New(repo repository.Repository) *UseCase {
	return &UseCase{repo: repo}
}

// Import reads a YAML profile document and stores it
func (u *UseCase) Import(ctx context.Context, r io.Reader) (*model.Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile")
	}

	var p model.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile YAML")
	}
	if p.UserID == "" {
		return nil, goerr.New("profile user_id is required")
	}
	p.UpdatedAt = time.Now()

	if err := u.repo.PutProfile(ctx, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to store profile", goerr.V("user_id", p.UserID))
	}
	return &p, nil
}

// Show returns the stored profile for the user
func (u *UseCase) Show(ctx context.Context, userID string) (*model.Profile, error) {
	return u.repo.GetProfile(ctx, userID)
}
