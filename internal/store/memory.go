package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// MemoryStore keeps runs in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*sweepv1.RunStatus
	jobs map[string]map[int]sweepv1.JobStatus
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*sweepv1.RunStatus),
		jobs: make(map[string]map[int]sweepv1.JobStatus),
	}
}

func (m *MemoryStore) SaveRun(_ context.Context, run *sweepv1.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.RunID] = &cp
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (*sweepv1.RunStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, opts ListOptions) ([]*sweepv1.RunStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []*sweepv1.RunStatus
	for _, r := range m.runs {
		if opts.Suite != "" && r.Suite != opts.Suite {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		cp := *r
		runs = append(runs, &cp)
	}
	// Newest first, matching the SQLite ordering
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartTime.Equal(runs[j].StartTime) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return page(runs, opts), nil
}

func (m *MemoryStore) SaveJobStatus(_ context.Context, runID string, status *sweepv1.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[runID]; !ok {
		m.jobs[runID] = make(map[int]sweepv1.JobStatus)
	}
	m.jobs[runID][status.Index] = *status
	return nil
}

func (m *MemoryStore) ListJobStatuses(_ context.Context, runID string) ([]sweepv1.JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.runs[runID]; !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	jobs := make([]sweepv1.JobStatus, 0, len(m.jobs[runID]))
	for _, j := range m.jobs[runID] {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Index < jobs[j].Index })
	return jobs, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func page(runs []*sweepv1.RunStatus, opts ListOptions) []*sweepv1.RunStatus {
	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs
}
