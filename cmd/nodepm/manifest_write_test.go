package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/nodepm/manifest"
)

func TestWriteManifestRoundTripsThroughParse(t *testing.T) {
	dir := t.TempDir()
	src := []byte(`{
		"name": "app",
		"private": true,
		"dependencies": {"left-pad": "^1.0.0"},
		"scripts": {"build": "tsc"}
	}`)
	m, err := manifest.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	setDependency(&m.Dependencies, "right-pad", "^2.0.0")
	removeDependency(&m.Scripts, "build")
	setDependency(&m.DevDependencies, "jest", "^29.0.0")

	if err := writeManifest(dir, m); err != nil {
		t.Fatalf("writeManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	reparsed, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("re-parsing written manifest: %v\n%s", err, data)
	}

	if v, ok := reparsed.Dependencies.Get("left-pad"); !ok || v != "^1.0.0" {
		t.Fatalf("left-pad = (%q, %v), want (^1.0.0, true)", v, ok)
	}
	if v, ok := reparsed.Dependencies.Get("right-pad"); !ok || v != "^2.0.0" {
		t.Fatalf("right-pad = (%q, %v), want (^2.0.0, true)", v, ok)
	}
	if v, ok := reparsed.DevDependencies.Get("jest"); !ok || v != "^29.0.0" {
		t.Fatalf("jest = (%q, %v), want (^29.0.0, true)", v, ok)
	}
	if reparsed.Scripts.Len() != 0 {
		t.Fatalf("expected scripts to be empty after removing build, got %v", reparsed.Scripts.Keys)
	}
	if _, ok := reparsed.Extra["name"]; !ok {
		t.Fatalf("expected passthrough field 'name' to survive the round trip")
	}
	if _, ok := reparsed.Extra["private"]; !ok {
		t.Fatalf("expected passthrough field 'private' to survive the round trip")
	}
}
