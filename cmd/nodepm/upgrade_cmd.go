package main

import (
	"context"
	"fmt"

	"github.com/a-h/nodepm/cmd/globals"
	"github.com/a-h/nodepm/resolve"
)

// UpgradeCmd re-resolves every direct dependency to its latest version,
// ignoring whatever the existing lockfile pinned (spec §6 "upgrade
// [--pin]").
type UpgradeCmd struct {
	Pin bool `help:"Pin each dependency to its exact resolved version instead of a caret range"`
}

func (cmd *UpgradeCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	for _, name := range s.manifest.Dependencies.Keys {
		resp, err := s.client.FetchMetadata(ctx, name)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", name, err)
		}
		latest, ok := resp.DistTags["latest"]
		if !ok {
			return fmt.Errorf("registry response for %s has no \"latest\" dist-tag", name)
		}
		specifierRaw := "^" + latest
		if cmd.Pin {
			specifierRaw = latest
		}
		setDependency(&s.manifest.Dependencies, name, specifierRaw)
	}

	if err := writeManifest(s.workingDir, s.manifest); err != nil {
		return err
	}

	roots, err := s.manifestRoots()
	if err != nil {
		return err
	}

	// Discard the old lockfile content for these roots entirely: upgrade
	// means "re-resolve", not "re-verify against what's pinned".
	graph := resolve.NewGraph()
	p, err := s.resolveAndPlan(ctx, graph, roots, true)
	if err != nil {
		return err
	}
	return s.install(ctx, p)
}
