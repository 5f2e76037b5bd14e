// Package plan implements the planner/hoister (spec §4.F): it converts a
// resolved graph into a hoisted installation tree that places each
// distinct package name at most once at the root level where possible,
// nesting only on version conflict.
//
// Grounded on npm/save/save.go's SliceIterator/iter.Seq pattern for
// deterministic, order-stable traversal over a dependency set, adapted
// here from "iterate packages to save" to "iterate reachable (name,
// version) triples to hoist".
package plan

import (
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/manifest"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/specifier"
)

// Plan is a mapping from top-level local name to its hoisted tree (spec
// §3 "Plan": a mapping from top-level local name to tree).
type Plan struct {
	Trees map[string]*resolve.TreeNode
}

// hoistTarget is the chosen (version, representative request) pair for one
// distinct package name (§4.F steps 1-2). representative is whichever
// DepReq in the graph resolved to that exact version; it stands in for the
// name at the root level so a tree can be built for it even when no
// manifest root ever referenced it directly.
type hoistTarget struct {
	version        *semver.Version
	representative resolve.DepReq
}

// Build runs the hoisting algorithm (spec §4.F) over graph, starting from
// roots. An explicit root is never displaced by hoisting another
// occurrence of its name, matching "if the name already appears as an
// explicit root, keep the root version". Plan.Trees holds one tree per
// name, so when several roots share a name, the last of them in roots
// order keeps the root-level entry.
func Build(log *slog.Logger, graph *resolve.Graph, roots []resolve.DepReq) (*Plan, error) {
	rootNames := make(map[string]bool, len(roots))
	for _, r := range roots {
		rootNames[r.Name] = true
	}

	hoisted := chooseHoistTargets(graph, roots, rootNames)

	isHoisted := func(name, version string) bool {
		t, ok := hoisted[name]
		return ok && t.version.Original() == version
	}

	// Step 3: every hoisted choice becomes a new root-level tree entry,
	// in addition to the roots the manifest named explicitly.
	allRoots := append([]resolve.DepReq(nil), roots...)
	for name, t := range hoisted {
		if rootNames[name] {
			continue
		}
		allRoots = append(allRoots, t.representative)
	}

	trees, err := resolve.BuildTrees(log, graph, allRoots, isHoisted)
	if err != nil {
		return nil, err
	}

	p := &Plan{Trees: make(map[string]*resolve.TreeNode, len(trees))}
	for _, t := range trees {
		p.Trees[t.Request.Name] = t
	}

	// Step 5: recurse hoisting inside each remaining (non-hoisted) subtree
	// so nested-nested duplicates collapse too. Each subtree is hoisted
	// independently using only what's reachable under it.
	for _, t := range p.Trees {
		hoistSubtree(t)
	}

	return p, nil
}

// chooseHoistTargets implements §4.F steps 1-2: enumerate reachable
// (name, version, metadata) triples and choose, per distinct name, the
// single version to hoist.
func chooseHoistTargets(graph *resolve.Graph, roots []resolve.DepReq, rootNames map[string]bool) map[string]hoistTarget {
	best := make(map[string]hoistTarget)

	keys := graph.Keys()
	sort.Strings(keys)

	for _, k := range keys {
		entry, ok := graph.Get(k)
		if !ok || entry.Metadata == nil {
			continue
		}
		name := entry.Metadata.Name

		if rootNames[name] {
			// An explicit root keeps its own version; find it directly
			// rather than letting the "greatest across occurrences" rule
			// pick a different one.
			if _, already := best[name]; !already {
				for _, r := range roots {
					if r.Name != name {
						continue
					}
					if rootEntry, ok := graph.Get(r.Key()); ok {
						best[name] = hoistTarget{version: rootEntry.Version, representative: r}
					}
				}
			}
			continue
		}

		cur, ok := best[name]
		if !ok || entry.Version.GreaterThan(cur.version) {
			best[name] = hoistTarget{version: entry.Version, representative: entry.Request}
		}
	}
	return best
}

// hoistSubtree recurses the hoisting rule into node's children (§4.F step
// 5): within this subtree, pick one version per distinct child name and
// prune the rest so deeper duplicates collapse where versions allow.
func hoistSubtree(node *resolve.TreeNode) {
	if len(node.Children) == 0 {
		return
	}

	best := make(map[string]*semver.Version)
	for _, c := range node.Children {
		name := c.Metadata.Name
		if cur, ok := best[name]; !ok || c.Version.GreaterThan(cur) {
			best[name] = c.Version
		}
	}

	kept := node.Children[:0]
	seen := make(map[string]bool)
	for _, c := range node.Children {
		name := c.Metadata.Name
		if c.Version.Original() != best[name].Original() {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, c)
	}
	node.Children = kept

	for _, c := range node.Children {
		hoistSubtree(c)
	}
}

// Satisfies reports whether every direct dependency declared in m has a
// top-level tree entry whose pinned version satisfies its declared range
// (spec §4.F "Verification"; Testable Property 6). This is the fast-path
// check for "already installed, nothing to do".
func (p *Plan) Satisfies(m *manifest.Manifest) bool {
	for _, name := range m.Dependencies.Keys {
		raw, _ := m.Dependencies.Get(name)
		tree, ok := p.Trees[name]
		if !ok {
			return false
		}
		spec, err := specifier.Parse(raw)
		if err != nil {
			return false
		}
		if !spec.Satisfies(tree.Version) {
			return false
		}
	}
	return true
}
