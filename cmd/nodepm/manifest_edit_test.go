package main

import (
	"testing"

	"github.com/a-h/nodepm/manifest"
)

func TestSetDependencyAppendsNewKey(t *testing.T) {
	om := manifest.OrderedMap{Keys: []string{"alpha"}, Values: map[string]string{"alpha": "^1.0.0"}}
	setDependency(&om, "beta", "^2.0.0")
	if got, want := om.Keys, []string{"alpha", "beta"}; !equalStrings(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	if v, _ := om.Get("beta"); v != "^2.0.0" {
		t.Fatalf("Get(beta) = %q, want ^2.0.0", v)
	}
}

func TestSetDependencyOverwritesExistingKeyInPlace(t *testing.T) {
	om := manifest.OrderedMap{Keys: []string{"alpha", "beta"}, Values: map[string]string{"alpha": "^1.0.0", "beta": "^2.0.0"}}
	setDependency(&om, "alpha", "^3.0.0")
	if got, want := om.Keys, []string{"alpha", "beta"}; !equalStrings(got, want) {
		t.Fatalf("Keys = %v, want %v (order should be unchanged)", got, want)
	}
	if v, _ := om.Get("alpha"); v != "^3.0.0" {
		t.Fatalf("Get(alpha) = %q, want ^3.0.0", v)
	}
}

func TestSetDependencyOnEmptyOrderedMap(t *testing.T) {
	var om manifest.OrderedMap
	setDependency(&om, "alpha", "^1.0.0")
	if v, ok := om.Get("alpha"); !ok || v != "^1.0.0" {
		t.Fatalf("Get(alpha) = (%q, %v), want (^1.0.0, true)", v, ok)
	}
}

func TestRemoveDependencyDeletesKeyAndValue(t *testing.T) {
	om := manifest.OrderedMap{Keys: []string{"alpha", "beta", "gamma"}, Values: map[string]string{"alpha": "1", "beta": "2", "gamma": "3"}}
	removeDependency(&om, "beta")
	if got, want := om.Keys, []string{"alpha", "gamma"}; !equalStrings(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	if _, ok := om.Get("beta"); ok {
		t.Fatalf("expected beta to be removed from Values")
	}
}

func TestRemoveDependencyOnMissingKeyIsNoop(t *testing.T) {
	om := manifest.OrderedMap{Keys: []string{"alpha"}, Values: map[string]string{"alpha": "1"}}
	removeDependency(&om, "missing")
	if got, want := om.Keys, []string{"alpha"}; !equalStrings(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
