package usecase

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	"leadflow/internal/leadflow/adapter/persistence/memory"
	"leadflow/internal/leadflow/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore injects Ping and ListCollectionNames failures.
type brokenStore struct {
	*memory.DocumentStore
	pingErr error
	listErr error
}

func (s brokenStore) Ping(ctx context.Context) error { return s.pingErr }

func (s brokenStore) ListCollectionNames(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.DocumentStore.ListCollectionNames(ctx)
}

func TestStatusUsecase_InMemory(t *testing.T) {
	store := memory.NewDocumentStore()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := store.Insert(ctx, fmt.Sprintf("c%02d", i), repository.Document{"n": i})
		require.NoError(t, err)
	}

	uc := NewStatusUsecase(store, BackendInfo{Kind: "memory"})
	status := uc.DatabaseStatus(ctx)

	assert.Equal(t, "running", status.Backend)
	assert.Equal(t, "memory", status.StoreKind)
	assert.Equal(t, "connected & working", status.Database)
	assert.Equal(t, "in-memory", status.ConnectionStatus)
	assert.Equal(t, "not set", status.DatabaseURL)
	assert.Len(t, status.Collections, 10)
}

func TestStatusUsecase_Persistent(t *testing.T) {
	uc := NewStatusUsecase(memory.NewDocumentStore(), BackendInfo{
		Kind:          "mongodb",
		DatabaseName:  "leadflow",
		URLConfigured: true,
		Persistent:    true,
	})
	status := uc.DatabaseStatus(context.Background())

	assert.Equal(t, "connected", status.ConnectionStatus)
	assert.Equal(t, "set", status.DatabaseURL)
	assert.Equal(t, "leadflow", status.DatabaseName)
	assert.NotNil(t, status.Collections)

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"collections":[]`)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "éé", truncate("ééé", 2))
	assert.Equal(t, "connexion refusée", truncate("connexion refusée par le serveur", 17))
}

func TestStatusUsecase_Failures(t *testing.T) {
	long := stdErrors.New(strings.Repeat("x", 80))

	t.Run("ping fails", func(t *testing.T) {
		uc := NewStatusUsecase(brokenStore{DocumentStore: memory.NewDocumentStore(), pingErr: long}, BackendInfo{Kind: "mongodb"})
		status := uc.DatabaseStatus(context.Background())
		assert.Equal(t, "error: "+strings.Repeat("x", 50), status.Database)
		assert.Equal(t, "not connected", status.ConnectionStatus)
		assert.Empty(t, status.Collections)
	})

	t.Run("listing fails", func(t *testing.T) {
		uc := NewStatusUsecase(brokenStore{DocumentStore: memory.NewDocumentStore(), listErr: stdErrors.New("boom")}, BackendInfo{Kind: "mongodb", Persistent: true})
		status := uc.DatabaseStatus(context.Background())
		assert.Equal(t, "connected but error: boom", status.Database)
	})
}
