package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a-h/nodepm/manifest"
)

// writeManifest re-serializes m to workingDir/package.json. Manifest
// mutation is explicitly out of core scope (spec §1: "the manifest
// reader/writer" is an external collaborator) so this lives in the CLI
// layer, not the manifest package; it composes each OrderedMap's own
// MarshalJSON with the document's passthrough Extra fields the way
// manifest.Parse split them apart.
func writeManifest(workingDir string, m *manifest.Manifest) error {
	obj := make(map[string]json.RawMessage, len(m.Extra)+4)
	for k, v := range m.Extra {
		obj[k] = v
	}

	for field, om := range map[string]manifest.OrderedMap{
		"dependencies":         m.Dependencies,
		"devDependencies":      m.DevDependencies,
		"optionalDependencies": m.OptionalDependencies,
		"scripts":              m.Scripts,
	} {
		if om.Len() == 0 {
			continue
		}
		data, err := om.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding manifest field %q: %w", field, err)
		}
		obj[field] = data
	}

	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding package.json: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(workingDir, manifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
