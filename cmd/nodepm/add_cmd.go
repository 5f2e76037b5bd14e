package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a-h/nodepm/cmd/globals"
)

// AddCmd fetches each named package's latest version, writes it into the
// manifest, and reinstalls (spec §6 "add <names...> [--dev] [--pin]").
type AddCmd struct {
	Names []string `arg:"" help:"Package names to add (name or name@range)"`
	Dev   bool     `help:"Add as a devDependency instead of a dependency"`
	Pin   bool     `help:"Pin the exact resolved version instead of a caret range"`
}

func (cmd *AddCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	for _, raw := range cmd.Names {
		name, rangeArg := splitNameAndRange(raw)

		specifierRaw := rangeArg
		if specifierRaw == "" {
			resp, err := s.client.FetchMetadata(ctx, name)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", name, err)
			}
			latest, ok := resp.DistTags["latest"]
			if !ok {
				return fmt.Errorf("registry response for %s has no \"latest\" dist-tag", name)
			}
			if cmd.Pin {
				specifierRaw = latest
			} else {
				specifierRaw = "^" + latest
			}
		}

		target := &s.manifest.Dependencies
		if cmd.Dev {
			target = &s.manifest.DevDependencies
		}
		setDependency(target, name, specifierRaw)
		s.log.Info("added dependency", slog.String("name", name), slog.String("specifier", specifierRaw))
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

// splitNameAndRange splits "name@range" into ("name", "range"), or
// ("name", "") when no range was given. A leading "@" (scoped package)
// isn't treated as the separator.
func splitNameAndRange(raw string) (name, rangeArg string) {
	scoped := strings.HasPrefix(raw, "@")
	rest := raw
	if scoped {
		rest = raw[1:]
	}
	idx := strings.Index(rest, "@")
	if idx < 0 {
		return raw, ""
	}
	if scoped {
		return "@" + rest[:idx], rest[idx+1:]
	}
	return rest[:idx], rest[idx+1:]
}
