package persistence

import (
	"context"
	"fmt"

	"leadflow/internal/leadflow/adapter/persistence/memory"
	"leadflow/internal/leadflow/adapter/persistence/mongodb"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/shared/errors"
	"leadflow/internal/shared/logger"
)

var errNotConfigured = fmt.Errorf("%w: not configured", errors.ErrBackendUnavailable)

// Backend names the DocumentStore implementation in use.
type Backend string

const (
	BackendMongoDB Backend = "mongodb"
	BackendMemory  Backend = "memory"
)

// StoreHandle is the store chosen at startup plus what was learned choosing it.
type StoreHandle struct {
	Store        repository.DocumentStore
	Backend      Backend
	DatabaseName string
	// FallbackReason is why MongoDB was not used, nil when it is.
	FallbackReason error
}

// Persistent reports whether the handle is backed by MongoDB.
func (h *StoreHandle) Persistent() bool {
	return h.Backend == BackendMongoDB
}

// OpenDocumentStore probes MongoDB once when it is configured and falls back to
// the in-memory store otherwise. The choice holds for the process lifetime.
func OpenDocumentStore(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) *StoreHandle {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("persistence")

	if !cfg.Enabled() {
		log.Warn("DATABASE_URL or DATABASE_NAME not set, using in-memory store")
		return memoryHandle(errNotConfigured)
	}

	store, err := mongodb.Connect(ctx, cfg.URL, cfg.Name, cfg.ProbeTimeout)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"database": cfg.Name,
			"timeout":  cfg.ProbeTimeout.String(),
		}).Warnf("MongoDB unavailable, using in-memory store: %v", err)
		return memoryHandle(err)
	}

	log.WithFields(map[string]interface{}{"database": cfg.Name}).Info("Connected to MongoDB")
	return &StoreHandle{
		Store:        store,
		Backend:      BackendMongoDB,
		DatabaseName: store.DatabaseName(),
	}
}

func memoryHandle(reason error) *StoreHandle {
	return &StoreHandle{
		Store:          memory.NewDocumentStore(),
		Backend:        BackendMemory,
		FallbackReason: reason,
	}
}
