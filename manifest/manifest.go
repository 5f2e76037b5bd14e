// Package manifest implements the project manifest format (spec §4.D):
// the package.json-shaped JSON document that declares direct dependencies.
// Manifest reading/writing is otherwise an external-collaborator concern
// per spec §1 ("the manifest reader/writer" is out of core scope); this
// package supplies only the minimal decode the core needs to turn a
// manifest into root DepReqs.
//
// Grounded on npm/pkglock/pkglock.go's json.NewDecoder-based parsing idiom
// and registry/decode.go's manual token walk for order preservation,
// generalized into a reusable OrderedMap.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/a-h/nodepm/resolve"
)

// OrderedMap preserves the insertion order of a JSON object's keys, which
// encoding/json's native map decoding discards. Dependencies, devDependencies,
// optionalDependencies and scripts are all ordered maps per spec §3/§4.D.
type OrderedMap struct {
	Keys   []string
	Values map[string]string
}

// Get returns the value for key and whether it was present.
func (m OrderedMap) Get(key string) (string, bool) {
	v, ok := m.Values[key]
	return v, ok
}

// Len reports the number of entries.
func (m OrderedMap) Len() int { return len(m.Keys) }

// UnmarshalJSON decodes a JSON object of string values, recording key
// order as it walks the token stream.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading opening token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	values := make(map[string]string)
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding value for %q: %w", key, err)
		}
		keys = append(keys, key)
		values[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading closing token: %w", err)
	}
	m.Keys, m.Values = keys, values
	return nil
}

// MarshalJSON re-emits the object in its recorded key order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Manifest is the decoded project manifest (spec §4.D).
type Manifest struct {
	Dependencies         OrderedMap
	DevDependencies      OrderedMap
	OptionalDependencies OrderedMap
	Scripts              OrderedMap

	// Extra carries every field the manifest declared beyond the four
	// known ones, verbatim, so that a round-trip write (an external
	// collaborator's job, not this package's) can reproduce them.
	Extra map[string]json.RawMessage
}

var knownManifestFields = map[string]bool{
	"dependencies":         true,
	"devDependencies":      true,
	"optionalDependencies": true,
	"scripts":              true,
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	m := &Manifest{Extra: make(map[string]json.RawMessage)}
	for field, target := range map[string]*OrderedMap{
		"dependencies":         &m.Dependencies,
		"devDependencies":      &m.DevDependencies,
		"optionalDependencies": &m.OptionalDependencies,
		"scripts":              &m.Scripts,
	} {
		raw, ok := raw[field]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("parsing manifest field %q: %w", field, err)
		}
	}
	for field, value := range raw {
		if !knownManifestFields[field] {
			m.Extra[field] = value
		}
	}
	return m, nil
}

// Roots builds the root DepReq set the resolver should extend a graph
// with: every runtime dependency (required) plus every optional
// dependency (optional=true). devDependencies are intentionally excluded;
// the manifest-reader external collaborator decides when to include them
// (e.g. a `--production` install omits them entirely, which this package
// has no opinion on).
func (m *Manifest) Roots() ([]resolve.DepReq, error) {
	roots := make([]resolve.DepReq, 0, m.Dependencies.Len()+m.OptionalDependencies.Len())
	for _, name := range m.Dependencies.Keys {
		dr, err := resolve.ParseDepReq(name + "!" + m.Dependencies.Values[name])
		if err != nil {
			return nil, fmt.Errorf("building root request for %q: %w", name, err)
		}
		roots = append(roots, dr)
	}
	for _, name := range m.OptionalDependencies.Keys {
		dr, err := resolve.ParseDepReq(name + "!" + m.OptionalDependencies.Values[name] + "?")
		if err != nil {
			return nil, fmt.Errorf("building optional root request for %q: %w", name, err)
		}
		roots = append(roots, dr)
	}
	return roots, nil
}

// DirectDependencyNames returns the declared runtime dependency names, in
// manifest order.
func (m *Manifest) DirectDependencyNames() []string {
	names := make([]string, 0, m.Dependencies.Len())
	names = append(names, m.Dependencies.Keys...)
	return names
}
