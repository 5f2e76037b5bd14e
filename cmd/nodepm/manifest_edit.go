package main

import "github.com/a-h/nodepm/manifest"

// setDependency inserts or overwrites name's specifier in om, preserving
// insertion order for the common case (append) and leaving order
// untouched when name is already present.
func setDependency(om *manifest.OrderedMap, name, specifierRaw string) {
	if om.Values == nil {
		om.Values = make(map[string]string)
	}
	if _, exists := om.Values[name]; !exists {
		om.Keys = append(om.Keys, name)
	}
	om.Values[name] = specifierRaw
}

// removeDependency deletes name from om, if present.
func removeDependency(om *manifest.OrderedMap, name string) {
	if _, ok := om.Values[name]; !ok {
		return
	}
	delete(om.Values, name)
	kept := om.Keys[:0]
	for _, k := range om.Keys {
		if k != name {
			kept = append(kept, k)
		}
	}
	om.Keys = kept
}
