package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/kination/sweeper/internal/sweep"
)

// DefaultConcurrency bounds parallel uploads
const DefaultConcurrency = 4

// Publisher uploads the output file of every variant of a run
type Publisher struct {
	store       Store
	log         logr.Logger
	concurrency int
}

// Summary lists what a publish uploaded and what it could not find
type Summary struct {
	RunID    string
	Uploaded []string
	Missing  []string
	Bytes    int64
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d uploaded (%s), %d missing", len(s.Uploaded), humanize.Bytes(uint64(s.Bytes)), len(s.Missing))
}

// NewPublisher creates a Publisher; concurrency <= 0 uses DefaultConcurrency
func NewPublisher(store Store, log logr.Logger, concurrency int) *Publisher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Publisher{store: store, log: log.WithName("publisher"), concurrency: concurrency}
}

// Publish uploads dir/<OutputFile> for every variant, plus any extra files
// (run log, plot). Missing variant outputs are reported, not treated as errors.
func (p *Publisher) Publish(ctx context.Context, runID, dir string, variants []sweep.Variant, extra ...string) (*Summary, error) {
	files := make([]string, 0, len(variants)+len(extra))
	for _, v := range variants {
		files = append(files, filepath.Join(dir, v.OutputFile()))
	}
	files = append(files, extra...)

	sum := &Summary{RunID: runID}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, path := range files {
		g.Go(func() error {
			content, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				mu.Lock()
				sum.Missing = append(sum.Missing, filepath.Base(path))
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			name := filepath.Base(path)
			if err := p.store.Put(ctx, runID, name, content); err != nil {
				return fmt.Errorf("failed to upload %s: %w", name, err)
			}
			p.log.V(1).Info("Uploaded artifact", "file", name, "size", humanize.Bytes(uint64(len(content))))

			mu.Lock()
			sum.Uploaded = append(sum.Uploaded, name)
			sum.Bytes += int64(len(content))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(sum.Uploaded)
	sort.Strings(sum.Missing)
	p.log.Info("Published artifacts", "runID", runID, "summary", sum.String())
	return sum, nil
}
