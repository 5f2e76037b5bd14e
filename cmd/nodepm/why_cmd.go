package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/nodepm/cmd/globals"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/why"
)

// WhyCmd traces every path from a root dependency down to name (optionally
// pinned to a specific version) through the resolved graph (spec §6 "why
// <name> [version] [--dot]").
type WhyCmd struct {
	Name    string `arg:"" help:"Package name to trace"`
	Version string `arg:"" optional:"" help:"Exact version to trace; every version is traced if omitted"`
	Dot     bool   `help:"Emit Graphviz DOT instead of plain text"`
}

func (cmd *WhyCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	graph, err := s.loadGraph()
	if err != nil {
		return err
	}

	roots, err := s.manifestRoots()
	if err != nil {
		return err
	}

	versions := []string{cmd.Version}
	if cmd.Version == "" {
		versions = versionsOf(graph, cmd.Name)
	}

	var paths []why.Path
	for _, v := range versions {
		paths = append(paths, why.Trace(graph, roots, cmd.Name, v)...)
	}
	if len(paths) == 0 {
		fmt.Printf("%s is not in the dependency graph\n", cmd.Name)
		return nil
	}

	if cmd.Dot {
		dot, err := why.RenderDOT(paths)
		if err != nil {
			return fmt.Errorf("rendering dot: %w", err)
		}
		fmt.Println(dot)
		return nil
	}

	for _, p := range paths {
		fmt.Println(renderPathText(p))
	}
	return nil
}

// versionsOf collects every distinct version of name present in graph, so
// WhyCmd can trace across all of them when the caller didn't pin one.
func versionsOf(graph *resolve.Graph, name string) []string {
	var versions []string
	seen := make(map[string]bool)
	for _, key := range graph.Keys() {
		entry, ok := graph.Get(key)
		if !ok || entry.Metadata == nil || entry.Metadata.Name != name {
			continue
		}
		v := entry.Version.Original()
		if seen[v] {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}
	return versions
}

// renderPathText renders a single chain as "root -> ... -> target", each
// hop written as name@version.
func renderPathText(p why.Path) string {
	var b strings.Builder
	for i, step := range p {
		if i > 0 {
			b.WriteString(" -> ")
		}
		fmt.Fprintf(&b, "%s@%s", step.Name, step.Version)
	}
	return b.String()
}
