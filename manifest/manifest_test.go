package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePreservesDependencyOrder(t *testing.T) {
	doc := []byte(`{
		"name": "app",
		"dependencies": {"zeta": "^1.0.0", "alpha": "^2.0.0"},
		"optionalDependencies": {"native-thing": "^1.0.0"},
		"scripts": {"build": "tsc", "test": "jest"},
		"private": true
	}`)
	m, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha"}, m.Dependencies.Keys); diff != "" {
		t.Fatalf("dependency order mismatch (-want +got):\n%s", diff)
	}
	if v, _ := m.Dependencies.Get("alpha"); v != "^2.0.0" {
		t.Fatalf("got %q, want ^2.0.0", v)
	}
	if _, ok := m.Extra["name"]; !ok {
		t.Fatalf("expected passthrough field 'name' to be preserved")
	}
	if _, ok := m.Extra["private"]; !ok {
		t.Fatalf("expected passthrough field 'private' to be preserved")
	}
}

func TestRootsMarksOptionalDependencies(t *testing.T) {
	doc := []byte(`{
		"dependencies": {"left-pad": "^1.0.0"},
		"optionalDependencies": {"native-thing": "^2.0.0"}
	}`)
	m, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	roots, err := m.Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(roots))
	}
	var sawOptional bool
	for _, r := range roots {
		if r.Name == "native-thing" {
			sawOptional = true
			if !r.Optional {
				t.Fatalf("expected native-thing to be optional")
			}
		}
		if r.Name == "left-pad" && r.Optional {
			t.Fatalf("expected left-pad to be required")
		}
	}
	if !sawOptional {
		t.Fatalf("expected native-thing among roots")
	}
}

func TestOrderedMapRoundTrip(t *testing.T) {
	doc := []byte(`{"dependencies":{"b":"1.0.0","a":"2.0.0"}}`)
	m, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := m.Dependencies.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `{"b":"1.0.0","a":"2.0.0"}`
	if string(out) != want {
		t.Fatalf("got %s, want %s", out, want)
	}
}
