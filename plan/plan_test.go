package plan

import (
	"io"
	"log/slog"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/manifest"
	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/specifier"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustSpec(t *testing.T, raw string) specifier.Specifier {
	t.Helper()
	s, err := specifier.Parse(raw)
	if err != nil {
		t.Fatalf("parsing specifier %q: %v", raw, err)
	}
	return s
}

func put(t *testing.T, graph *resolve.Graph, req resolve.DepReq, version string, deps map[string]string) {
	t.Helper()
	v, err := semver.NewVersion(version)
	if err != nil {
		t.Fatalf("parsing version %q: %v", version, err)
	}
	graph.Put(req.Key(), resolve.Entry{
		Request: req,
		Version: v,
		Metadata: &registry.PackageMetadata{
			Name:         req.Name,
			Version:      version,
			Dependencies: deps,
		},
	})
}

// TestHoistingPrefersGreatestNonRootVersion covers Testable Property 7:
// if the graph contains A v1 and A v2 (A v2 greater, A not a direct dep),
// the hoisted plan pins A v2 at the root, and A v1 appears only as a
// child of whichever package required it.
func TestHoistingPrefersGreatestNonRootVersion(t *testing.T) {
	graph := resolve.NewGraph()

	root := resolve.DepReq{Name: "app", Specifier: mustSpec(t, "^1.0.0")}
	put(t, graph, root, "1.0.0", map[string]string{"a": "^2.0.0", "old-consumer": "^1.0.0"})

	aNewReq := resolve.DepReq{Name: "a", Specifier: mustSpec(t, "^2.0.0")}
	put(t, graph, aNewReq, "2.0.0", nil)

	oldConsumerReq := resolve.DepReq{Name: "old-consumer", Specifier: mustSpec(t, "^1.0.0")}
	put(t, graph, oldConsumerReq, "1.0.0", map[string]string{"a": "^1.0.0"})

	aOldReq := resolve.DepReq{Name: "a", Specifier: mustSpec(t, "^1.0.0")}
	put(t, graph, aOldReq, "1.0.0", nil)

	p, err := Build(testLogger(), graph, []resolve.DepReq{root})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	aTree, ok := p.Trees["a"]
	if !ok {
		t.Fatalf("expected 'a' to be hoisted to the top level")
	}
	if aTree.Version.Original() != "2.0.0" {
		t.Fatalf("got hoisted version %s, want 2.0.0", aTree.Version.Original())
	}

	appTree := p.Trees["app"]
	for _, c := range appTree.Children {
		t.Fatalf("expected app's children to be fully hoisted away, found %s", c.Metadata.Name)
	}

	// old-consumer has no conflicting requirement of its own, so it too
	// gets hoisted to the root, distinct from a's root-level entry.
	oldConsumer, ok := p.Trees["old-consumer"]
	if !ok {
		t.Fatalf("expected old-consumer to be hoisted to the top level")
	}
	if len(oldConsumer.Children) != 1 || oldConsumer.Children[0].Metadata.Name != "a" {
		t.Fatalf("expected old-consumer to keep its own a@1.0.0 child, got %+v", oldConsumer.Children)
	}
	if oldConsumer.Children[0].Version.Original() != "1.0.0" {
		t.Fatalf("got nested a version %s, want 1.0.0", oldConsumer.Children[0].Version.Original())
	}
}

// TestPlanSatisfiesManifest covers Testable Property 6.
func TestPlanSatisfiesManifest(t *testing.T) {
	graph := resolve.NewGraph()
	root := resolve.DepReq{Name: "left-pad", Specifier: mustSpec(t, "^1.0.0")}
	put(t, graph, root, "1.3.0", nil)

	p, err := Build(testLogger(), graph, []resolve.DepReq{root})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m, err := manifest.Parse([]byte(`{"dependencies":{"left-pad":"^1.0.0"}}`))
	if err != nil {
		t.Fatalf("Parse manifest: %v", err)
	}
	if !p.Satisfies(m) {
		t.Fatalf("expected plan to satisfy manifest")
	}

	mismatched, err := manifest.Parse([]byte(`{"dependencies":{"left-pad":"^2.0.0"}}`))
	if err != nil {
		t.Fatalf("Parse manifest: %v", err)
	}
	if p.Satisfies(mismatched) {
		t.Fatalf("expected plan to not satisfy an incompatible manifest range")
	}
}
