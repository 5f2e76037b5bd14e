package main

import (
	"context"
	"log/slog"

	"github.com/a-h/nodepm/cmd/globals"
)

// UpdateCmd recomputes and saves the lockfile without installing (spec §6
// "update").
type UpdateCmd struct{}

func (cmd *UpdateCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	roots, err := s.manifestRoots()
	if err != nil {
		return err
	}

	graph, err := s.loadGraph()
	if err != nil {
		return err
	}

	if _, err := s.resolveAndPlan(ctx, graph, roots, false); err != nil {
		return err
	}

	s.log.Info("lockfile updated", slog.String("path", s.lockfilePath))
	return nil
}
