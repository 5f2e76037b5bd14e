package specifier

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func mustVersions(t *testing.T, raws ...string) []*semver.Version {
	t.Helper()
	out := make([]*semver.Version, len(raws))
	for i, r := range raws {
		v, err := semver.NewVersion(r)
		if err != nil {
			t.Fatalf("parsing version %q: %v", r, err)
		}
		out[i] = v
	}
	return out
}

func TestPickGreatestPrefersStable(t *testing.T) {
	c, err := semver.NewConstraint("^1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	candidates := mustVersions(t, "1.0.0", "1.2.0", "1.2.0-beta", "2.0.0")
	got, ok := PickGreatest(c, candidates)
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.String() != "1.2.0" {
		t.Fatalf("got %s, want 1.2.0", got.String())
	}
}

func TestPickGreatestFallsBackToPrerelease(t *testing.T) {
	c, err := semver.NewConstraint("^1.2.0-0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	candidates := mustVersions(t, "1.2.0-alpha", "1.2.0-beta")
	got, ok := PickGreatest(c, candidates)
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.String() != "1.2.0-beta" {
		t.Fatalf("got %s, want 1.2.0-beta", got.String())
	}
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"^1.0.0", KindRange},
		{"~1.2.3", KindRange},
		{"latest", KindTag},
		{"https://example.invalid/pkg.tgz", KindDirectURL},
		{"npm:other-name@^2.0.0", KindAliased},
	}
	for _, tt := range tests {
		s, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tt.raw, err)
		}
		if s.Kind != tt.kind {
			t.Fatalf("Parse(%q).Kind = %v, want %v", tt.raw, s.Kind, tt.kind)
		}
	}
}

func TestAliasedSatisfiesDelegatesToInner(t *testing.T) {
	s, err := Parse("npm:other-name@^2.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.AliasName != "other-name" {
		t.Fatalf("AliasName = %q, want other-name", s.AliasName)
	}
	v := mustVersions(t, "2.1.0")[0]
	if !s.Satisfies(v) {
		t.Fatalf("expected 2.1.0 to satisfy npm:other-name@^2.0.0")
	}
	v2 := mustVersions(t, "1.9.0")[0]
	if s.Satisfies(v2) {
		t.Fatalf("expected 1.9.0 to not satisfy npm:other-name@^2.0.0")
	}
}
