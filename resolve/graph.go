package resolve

import (
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/registry"
)

// Entry is the value side of the Graph mapping: the resolved version and
// the (possibly trimmed) metadata that produced it.
type Entry struct {
	Request  DepReq
	Version  *semver.Version
	Metadata *registry.PackageMetadata
}

// PinnedDependency is the stable, serializable identity of an installed
// package (spec §3): name, version, tarball URL, normalized bins, and
// scripts. ScriptOrder lists the script names in no defined order: the
// metadata's scripts are decoded into a map, so the order package.json
// declared them in is not kept.
type PinnedDependency struct {
	Name        string
	Version     string
	TarballURL  string
	Bins        map[string]string
	ScriptOrder []string
	Scripts     map[string]string
}

// Key is the content-addressed store identity "name@version".
func (p PinnedDependency) Key() string { return p.Name + "@" + p.Version }

// String implements memo.Keyed.
func (p PinnedDependency) String() string { return p.Key() }

// Graph is the concurrent-safe DepReq -> Entry mapping described in spec
// §3. Entries start as an in-flight placeholder (present in the graph's
// tracking set but with no Entry yet) and transition to complete once
// filled; readers only consume a Graph after the resolver's driver has
// joined all of its tasks, so placeholders are never observed outside the
// resolver itself.
type Graph struct {
	mu      sync.RWMutex
	entries map[string]Entry
	claimed map[string]struct{}
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		entries: make(map[string]Entry),
		claimed: make(map[string]struct{}),
	}
}

// Claim registers key as being resolved by the calling goroutine and
// reports whether it was the first to do so. The resolver's driver calls
// this before spawning a task for a DepReq so that two concurrent branches
// requesting the identical key (name + specifier + optional) only resolve
// it once; the resolver's metadata memo.Cache still dedupes the network
// fetch, but Claim also dedupes the recursion itself.
func (g *Graph) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.claimed[key]; ok {
		return false
	}
	g.claimed[key] = struct{}{}
	return true
}

// Get returns the entry for key (DepReq.Key()), if present.
func (g *Graph) Get(key string) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[key]
	return e, ok
}

// Put inserts or overwrites the entry for key.
func (g *Graph) Put(key string, e Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[key] = e
}

// Has reports whether key is already a complete entry in the graph.
func (g *Graph) Has(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entries[key]
	return ok
}

// Keys returns every key currently in the graph, in no particular order.
// Callers that need determinism should sort the result themselves (plan
// and lockfile both do).
func (g *Graph) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, 0, len(g.entries))
	for k := range g.entries {
		keys = append(keys, k)
	}
	return keys
}

// Entries returns a snapshot copy of the full key->entry mapping.
func (g *Graph) Entries() map[string]Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Entry, len(g.entries))
	for k, v := range g.entries {
		out[k] = v
	}
	return out
}

// IsClosed reports whether every child request of every stored entry is
// also a key in the graph (spec §3 invariant; Testable Property 2).
func (g *Graph) IsClosed() (missing []string, closed bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.entries {
		for _, child := range childRequests(e) {
			if _, ok := g.entries[child.Key()]; !ok {
				missing = append(missing, child.Key())
			}
		}
	}
	return missing, len(missing) == 0
}

// ChildRequests exposes childRequests for callers outside this package
// that need to walk the graph's edges (the why package's reverse trace).
func ChildRequests(e Entry) []DepReq {
	return childRequests(e)
}

// childRequests enumerates the dependencies and optional_dependencies of
// an entry's metadata as DepReqs (spec §4.E step 3).
func childRequests(e Entry) []DepReq {
	if e.Metadata == nil {
		return nil
	}
	var out []DepReq
	for name, raw := range e.Metadata.Dependencies {
		if dr, err := newChildDepReq(name, raw, false); err == nil {
			out = append(out, dr)
		}
	}
	for name, raw := range e.Metadata.OptionalDependencies {
		if dr, err := newChildDepReq(name, raw, true); err == nil {
			out = append(out, dr)
		}
	}
	return out
}
