// Package store provides persistence for run records and job statuses.
package store

import (
	"context"
	"errors"
	"fmt"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for run history persistence.
// Implementations can use SQLite or keep everything in memory.
type Store interface {
	// Run operations
	SaveRun(ctx context.Context, run *sweepv1.RunStatus) error
	GetRun(ctx context.Context, runID string) (*sweepv1.RunStatus, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]*sweepv1.RunStatus, error)

	// Job status operations
	SaveJobStatus(ctx context.Context, runID string, status *sweepv1.JobStatus) error
	ListJobStatuses(ctx context.Context, runID string) ([]sweepv1.JobStatus, error)

	// Health check
	Ping(ctx context.Context) error

	// Close releases resources
	Close() error
}

// ListOptions defines options for listing runs
type ListOptions struct {
	// Limit is the maximum number of runs to return
	Limit int
	// Offset is the number of runs to skip
	Offset int
	// Suite filters by suite name
	Suite string
	// State filters by run state
	State sweepv1.RunState
}

// StoreConfig holds configuration for creating a store
type StoreConfig struct {
	// Type is the store backend type (sqlite, memory)
	Type StoreType
	// ConnectionString is the database path for sqlite
	ConnectionString string
}

// StoreType defines the type of store backend
type StoreType string

const (
	// StoreTypeSQLite keeps run history in a local SQLite file
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypeMemory uses in-memory storage (for testing and dry runs)
	StoreTypeMemory StoreType = "memory"
)

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:             StoreTypeSQLite,
		ConnectionString: "expresults/sweeper.db",
	}
}

// New opens the store described by cfg
func New(cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeSQLite, "":
		return OpenSQLite(cfg.ConnectionString)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
