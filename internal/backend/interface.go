package backend

import (
	"context"

	"pnlcal/internal/store"
)

// Backend is the entry store handed to the web layer, whatever variant was
// selected at startup.
type Backend interface {
	store.EntryStore
	store.EntryGetter
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Type    BackendType
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
