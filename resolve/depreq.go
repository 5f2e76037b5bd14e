// Package resolve implements the resolver (spec §4.E): it extends a Graph
// with the transitive closure of a set of root DepReqs, backed by the
// registry client and the async memoization cache.
package resolve

import (
	"fmt"
	"strings"

	"github.com/a-h/nodepm/specifier"
)

// DepReq is the tuple (name, version_specifier, optional) from spec §3.
// name is always the *local* install name: for an Aliased specifier
// ("npm:real-name@range"), name is the local alias and the real registry
// package name lives on the specifier itself (Specifier.AliasName).
//
// Equality and hashing are over all three fields; Key() is the textual
// round-trip form "name!specifier" with a trailing "?" for optional
// requests, and is what the lockfile and the resolver's in-flight set use
// as a map key (a Specifier's semver.Constraints pointer isn't itself
// comparable across two independently-parsed instances, so the struct is
// never used directly as a map key).
type DepReq struct {
	Name      string
	Specifier specifier.Specifier
	Optional  bool
}

// Key returns the canonical textual form of the request.
func (d DepReq) Key() string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteByte('!')
	sb.WriteString(d.Specifier.String())
	if d.Optional {
		sb.WriteByte('?')
	}
	return sb.String()
}

// String implements memo.Keyed / fmt.Stringer.
func (d DepReq) String() string { return d.Key() }

// ParseDepReq parses the textual round-trip form produced by Key().
func ParseDepReq(s string) (DepReq, error) {
	optional := strings.HasSuffix(s, "?")
	if optional {
		s = s[:len(s)-1]
	}
	idx := strings.Index(s, "!")
	if idx < 0 {
		return DepReq{}, fmt.Errorf("invalid DepReq textual form %q: missing '!'", s)
	}
	name := s[:idx]
	specRaw := s[idx+1:]
	spec, err := specifier.Parse(specRaw)
	if err != nil {
		return DepReq{}, fmt.Errorf("invalid DepReq textual form %q: %w", s, err)
	}
	return DepReq{Name: name, Specifier: spec, Optional: optional}, nil
}
