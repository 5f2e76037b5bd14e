package main

import (
	"context"
	"log/slog"

	"github.com/a-h/nodepm/cmd/globals"
)

// RemoveCmd strips names from the manifest and reinstalls (spec §6
// "remove <names...> [--dev]").
type RemoveCmd struct {
	Names []string `arg:"" help:"Package names to remove"`
	Dev   bool     `help:"Remove from devDependencies instead of dependencies"`
}

func (cmd *RemoveCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	target := &s.manifest.Dependencies
	if cmd.Dev {
		target = &s.manifest.DevDependencies
	}
	for _, name := range cmd.Names {
		removeDependency(target, name)
		s.log.Info("removed dependency", slog.String("name", name))
	}

	if err := writeManifest(s.workingDir, s.manifest); err != nil {
		return err
	}

	p, err := s.buildPlan(ctx)
	if err != nil {
		return err
	}
	return s.install(ctx, p)
}
