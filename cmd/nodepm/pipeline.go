package main

import (
	"context"
	"fmt"
	"os"

	"github.com/a-h/nodepm/errtag"
	"github.com/a-h/nodepm/lockfile"
	"github.com/a-h/nodepm/plan"
	"github.com/a-h/nodepm/resolve"
)

// loadGraph reads s.lockfilePath if present, returning an empty Graph
// otherwise (spec §4.D: a missing lockfile is a cold-start, not an
// error).
func (s *session) loadGraph() (*resolve.Graph, error) {
	data, err := os.ReadFile(s.lockfilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return resolve.NewGraph(), nil
		}
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	graph, err := lockfile.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding lockfile: %w", err)
	}
	return graph, nil
}

// saveGraph writes graph to s.lockfilePath, unless --immutable forbids it
// (spec §6 global flags).
func (s *session) saveGraph(graph *resolve.Graph) error {
	if s.globals.Immutable {
		return fmt.Errorf("%w: refusing to write %s", errtag.ErrLockfileStale, s.lockfilePath)
	}
	data, err := lockfile.Encode(graph)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.lockfilePath, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile: %w", err)
	}
	return nil
}

// resolveAndPlan extends graph with roots (via the resolver, unless
// --immutable requires every root to already be present), then hoists the
// result into a Plan. download gates best-effort background downloads
// during resolution (spec §4.E step 3), separate from the installer's own
// store reads.
func (s *session) resolveAndPlan(ctx context.Context, graph *resolve.Graph, roots []resolve.DepReq, download bool) (*plan.Plan, error) {
	if s.globals.Immutable {
		for _, r := range roots {
			if !graph.Has(r.Key()) {
				return nil, fmt.Errorf("%w: %s is not in the lockfile", errtag.ErrLockfileStale, r.Key())
			}
		}
	} else {
		if err := s.resolver.Append(ctx, graph, roots, download); err != nil {
			return nil, fmt.Errorf("resolving dependencies: %w", err)
		}
		if err := s.saveGraph(graph); err != nil {
			return nil, err
		}
	}

	p, err := plan.Build(s.log, graph, roots)
	if err != nil {
		return nil, fmt.Errorf("building install plan: %w", err)
	}
	return p, nil
}

func (s *session) manifestRoots() ([]resolve.DepReq, error) {
	roots, err := s.manifest.Roots()
	if err != nil {
		return nil, fmt.Errorf("reading manifest dependencies: %w", err)
	}
	return roots, nil
}
