package profile_test

import (
	"context"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/model"
	"github.com/m-mizutani/noctua/pkg/repository"
	"github.com/m-mizutani/noctua/pkg/usecase/profile"
)

type mockRepo struct {
	repository.Repository
	stored *model.Profile
}

func (m *mockRepo) PutProfile(ctx context.Context, p *model.Profile) error {
	m.stored = p
	return nil
}

const profileYAML = `
user_id: alice
display_name: Alice
bio: Distributed systems engineer.
interests:
  - consensus
  - databases
preferences:
  answer_style: concise
`

func TestImport(t *testing.T) {
	repo := &mockRepo{}
	uc := profile.New(repo)

	p, err := uc.Import(context.Background(), strings.NewReader(profileYAML))
	gt.NoError(t, err)
	gt.Equal(t, p.UserID, "alice")
	gt.Equal(t, p.DisplayName, "Alice")
	gt.Equal(t, p.Interests, []string{"consensus", "databases"})
	gt.Equal(t, p.Preferences["answer_style"], "concise")
	gt.True(t, !p.UpdatedAt.IsZero())
	gt.Equal(t, repo.stored, p)
}

func TestImportMissingUserID(t *testing.T) {
	uc := profile.New(&mockRepo{})
	_, err := uc.Import(context.Background(), strings.NewReader("display_name: Bob\n"))
	gt.Error(t, err)
}

func TestImportInvalidYAML(t *testing.T) {
	uc := profile.New(&mockRepo{})
	_, err := uc.Import(context.Background(), strings.NewReader("{not yaml"))
	gt.Error(t, err)
}
