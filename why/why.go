// Package why implements the why <name> [version] CLI contract's core
// logic (spec §6): given a resolved Graph, find every path from a root
// request down to a target (name, version) pair, so a user can see which
// of their direct dependencies pulled in a transitive one.
//
// Grounded on resolve.Graph.IsClosed's edge-walking shape (iterate every
// entry's resolve.ChildRequests to enumerate the graph's edges), run here
// in reverse: instead of checking that every child is present, build the
// parent index and walk it backwards from the target to each root.
package why

import (
	"sort"

	"github.com/a-h/nodepm/resolve"
)

// Step is one hop in a reverse-dependency path: the package that requested
// the next entry, and the request it made.
type Step struct {
	Name    string
	Version string
	Request resolve.DepReq
}

// Path is an ordered chain from a root request down to the traced target,
// root first.
type Path []Step

// Trace finds every path from one of roots down to (name, version) in
// graph. A target reachable from N roots by N distinct chains returns N
// paths; a target unreachable from any root returns nil.
func Trace(graph *resolve.Graph, roots []resolve.DepReq, name, version string) []Path {
	parents := buildParentIndex(graph)

	targetKeys := findEntryKeys(graph, name, version)
	if len(targetKeys) == 0 {
		return nil
	}

	rootKeys := make(map[string]bool, len(roots))
	for _, r := range roots {
		rootKeys[r.Key()] = true
	}

	var paths []Path
	for _, targetKey := range targetKeys {
		visited := make(map[string]bool)
		walkUp(graph, parents, rootKeys, targetKey, nil, visited, &paths)
	}

	sort.Slice(paths, func(i, j int) bool {
		return renderChain(paths[i]) < renderChain(paths[j])
	})
	return paths
}

// parentEdge is one entry's recorded requester: parentKey identifies the
// parent entry, request is the DepReq the parent used to reach the child.
type parentEdge struct {
	parentKey string
	request   resolve.DepReq
}

// buildParentIndex inverts graph's forward edges (entry -> its children's
// DepReqs) into childKey -> requesting parents, so Trace can walk from a
// target back up to the roots that (transitively) asked for it.
func buildParentIndex(graph *resolve.Graph) map[string][]parentEdge {
	index := make(map[string][]parentEdge)
	for parentKey, entry := range graph.Entries() {
		for _, child := range resolve.ChildRequests(entry) {
			childKey := child.Key()
			index[childKey] = append(index[childKey], parentEdge{parentKey: parentKey, request: child})
		}
	}
	return index
}

// findEntryKeys locates every graph key for a resolved (name, version)
// pair. A package can appear under several DepReq keys (different
// specifiers pinning the same version), and each key has its own parent
// edges in the reverse index, so Trace walks up from all of them.
func findEntryKeys(graph *resolve.Graph, name, version string) []string {
	var keys []string
	for _, key := range graph.Keys() {
		entry, ok := graph.Get(key)
		if !ok || entry.Metadata == nil {
			continue
		}
		if entry.Metadata.Name == name && entry.Version.Original() == version {
			keys = append(keys, key)
		}
	}
	return keys
}

// walkUp depth-first searches the reverse index from targetKey towards
// any root, appending a complete root-to-target Path to paths whenever a
// root is reached. visited guards against cycles, which the resolved graph
// keeps (only tree building cuts them); it's local to one walk.
func walkUp(graph *resolve.Graph, parents map[string][]parentEdge, roots map[string]bool, targetKey string, trail []Step, visited map[string]bool, paths *[]Path) {
	if visited[targetKey] {
		return
	}
	visited[targetKey] = true
	defer delete(visited, targetKey)

	for _, edge := range parents[targetKey] {
		parentEntry, ok := graph.Get(edge.parentKey)
		if !ok || parentEntry.Metadata == nil {
			continue
		}
		step := Step{Name: parentEntry.Metadata.Name, Version: parentEntry.Version.Original(), Request: edge.request}
		nextTrail := append([]Step{step}, trail...)

		if roots[edge.parentKey] {
			*paths = append(*paths, Path(append([]Step(nil), nextTrail...)))
		}
		walkUp(graph, parents, roots, edge.parentKey, nextTrail, visited, paths)
	}
}

func renderChain(p Path) string {
	s := ""
	for _, step := range p {
		s += step.Name + "@" + step.Version + ">"
	}
	return s
}
