package pool

import (
	"context"
	"strings"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

const TypeStatic = "static"

// Static returns a fixed list of hosts. An entry may be "name=address" to
// give the worker a name distinct from the address used to reach it.
type Static struct {
	hosts []string
}

func NewStatic(hosts ...string) *Static {
	return &Static{hosts: append([]string(nil), hosts...)}
}

func (s *Static) Type() string {
	return TypeStatic
}

// Discover returns one worker per distinct host, in declaration order.
func (s *Static) Discover(context.Context) ([]sweepv1.Worker, error) {
	seen := make(map[string]bool, len(s.hosts))
	workers := make([]sweepv1.Worker, 0, len(s.hosts))
	for _, h := range s.hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		w := sweepv1.Worker{Name: h}
		if name, addr, ok := strings.Cut(h, "="); ok {
			w = sweepv1.Worker{Name: name, Address: addr}
		}
		if seen[w.Name] {
			continue
		}
		seen[w.Name] = true
		workers = append(workers, w)
	}
	return workers, nil
}
