// Package pool discovers the workers a sweep is dispatched to.
package pool

import (
	"context"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// Discoverer finds the currently available workers.
type Discoverer interface {
	// Type returns the discoverer name (e.g., "static", "kube")
	Type() string

	// Discover returns the available workers in a stable order
	Discover(ctx context.Context) ([]sweepv1.Worker, error)
}
