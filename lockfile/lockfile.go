// Package lockfile implements the persisted graph serialization described
// in spec §4.D: a sorted mapping keyed by DepReq's textual round-trip
// form, so the on-disk file is byte-identical across runs when the graph
// is unchanged (Testable Property 5).
//
// Grounded on npm/pkglock/pkglock.go's json.Decoder-based parsing idiom;
// the sorted-key write path follows npm/pkglock's own use of
// slices.Sort/maps.Keys for deterministic output.
package lockfile

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
)

// entry is the on-disk shape of one lockfile record: a [version,
// metadata] pair, matching spec §4.D's "values are [version,
// package_metadata_subset] pairs".
type entry struct {
	Version  string                     `json:"version"`
	Metadata *registry.PackageMetadata  `json:"metadata"`
}

// Encode serializes graph as a sorted-key JSON document.
func Encode(graph *resolve.Graph) ([]byte, error) {
	entries := graph.Entries()
	keys := slices.Sorted(maps.Keys(entries))

	ordered := make(map[string]entry, len(keys))
	for _, k := range keys {
		e := entries[k]
		ordered[k] = entry{Version: e.Version.Original(), Metadata: e.Metadata}
	}

	// encoding/json sorts map[string]... keys alphabetically when
	// marshaling, which is exactly the sorted order spec §4.D requires, so
	// a plain map marshal (not a hand-rolled ordered encoder) already gives
	// deterministic output here.
	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding lockfile: %w", err)
	}
	return data, nil
}

// Decode parses a lockfile document into a Graph with no registry access,
// reconstructing each Entry's Request from the textual DepReq key and
// Version from the stored version string (Testable Property 5: resolve →
// serialize → parse → resolve-with-no-registry-access must reproduce the
// identical graph).
func Decode(data []byte) (*resolve.Graph, error) {
	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding lockfile: %w", err)
	}

	graph := resolve.NewGraph()
	for key, e := range raw {
		req, err := resolve.ParseDepReq(key)
		if err != nil {
			return nil, fmt.Errorf("parsing lockfile key %q: %w", key, err)
		}
		version, err := semver.NewVersion(e.Version)
		if err != nil {
			return nil, fmt.Errorf("parsing lockfile version %q for %q: %w", e.Version, key, err)
		}
		graph.Put(key, resolve.Entry{Request: req, Version: version, Metadata: e.Metadata})
	}
	return graph, nil
}
