package usecase

import (
	"context"
	"testing"
	"time"

	"leadflow/internal/leadflow/adapter/persistence"
	"leadflow/internal/leadflow/adapter/persistence/memory"
	"leadflow/internal/leadflow/domain/model"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store *memory.DocumentStore
	repo  *persistence.DocumentRepository
}

func newFixture() *fixture {
	store := memory.NewDocumentStore()
	return &fixture{
		store: store,
		repo:  persistence.NewDocumentRepository(store, func() time.Time { return fixedNow }),
	}
}

func (f *fixture) project(t *testing.T, name string, steps ...string) *model.Project {
	t.Helper()
	id, err := f.repo.CreateDocument(context.Background(), model.CollectionProjects, model.NewProject(name, steps, fixedNow))
	require.NoError(t, err)
	p, err := f.repo.GetProject(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) user(t *testing.T, name string, role model.Role) *model.User {
	t.Helper()
	id, err := f.repo.CreateDocument(context.Background(), model.CollectionUsers, model.NewUser(name, name+"@example.com", role, fixedNow))
	require.NoError(t, err)
	u, err := f.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) lead(t *testing.T, name, projectID, step string) *model.Lead {
	t.Helper()
	id, err := f.repo.CreateDocument(context.Background(), model.CollectionLeads, model.NewLead(name, projectID, step, fixedNow))
	require.NoError(t, err)
	l, err := f.repo.GetLead(context.Background(), id)
	require.NoError(t, err)
	return l
}
