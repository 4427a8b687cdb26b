package usecase

import (
	"context"
	"time"

	"leadflow/internal/leadflow/domain/repository"
)

const maxListedCollections = 10

// BackendInfo describes the store selected at startup.
type BackendInfo struct {
	Kind          string
	DatabaseName  string
	URLConfigured bool
	Persistent    bool
}

// DatabaseStatus is the diagnostic report served at /test.
type DatabaseStatus struct {
	Backend          string   `json:"backend"`
	StoreKind        string   `json:"store"`
	Database         string   `json:"database"`
	DatabaseURL      string   `json:"database_url"`
	DatabaseName     string   `json:"database_name,omitempty"`
	ConnectionStatus string   `json:"connection_status"`
	Collections      []string `json:"collections"`
}

// StatusUsecase reports on the document store.
type StatusUsecase interface {
	DatabaseStatus(ctx context.Context) DatabaseStatus
}

type statusUsecase struct {
	store   repository.DocumentStore
	info    BackendInfo
	timeout time.Duration
}

func NewStatusUsecase(store repository.DocumentStore, info BackendInfo) StatusUsecase {
	return &statusUsecase{store: store, info: info, timeout: 3 * time.Second}
}

// DatabaseStatus never fails; problems are reported in the result.
func (uc *statusUsecase) DatabaseStatus(ctx context.Context) DatabaseStatus {
	status := DatabaseStatus{
		Backend:          "running",
		StoreKind:        uc.info.Kind,
		Database:         "not available",
		DatabaseURL:      "not set",
		DatabaseName:     uc.info.DatabaseName,
		ConnectionStatus: "not connected",
		Collections:      []string{},
	}
	if uc.info.URLConfigured {
		status.DatabaseURL = "set"
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	if err := uc.store.Ping(ctx); err != nil {
		status.Database = "error: " + truncate(err.Error(), 50)
		return status
	}
	if uc.info.Persistent {
		status.ConnectionStatus = "connected"
	} else {
		status.ConnectionStatus = "in-memory"
	}

	names, err := uc.store.ListCollectionNames(ctx)
	if err != nil {
		status.Database = "connected but error: " + truncate(err.Error(), 50)
		return status
	}
	if len(names) > maxListedCollections {
		names = names[:maxListedCollections]
	}
	status.Collections = append(status.Collections, names...)
	status.Database = "connected & working"
	return status
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
