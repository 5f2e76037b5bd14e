package why

import (
	"fmt"
	"sort"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/specifier"
)

func mustSpec(t *testing.T, raw string) specifier.Specifier {
	t.Helper()
	s, err := specifier.Parse(raw)
	if err != nil {
		t.Fatalf("specifier.Parse(%q): %v", raw, err)
	}
	return s
}

func mustVersion(t *testing.T, raw string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(raw)
	if err != nil {
		t.Fatalf("semver.NewVersion(%q): %v", raw, err)
	}
	return v
}

// put adds an entry to graph for name@version, requested via req, with
// deps as its dependency map.
func put(t *testing.T, graph *resolve.Graph, req resolve.DepReq, name, version string, deps map[string]string) {
	t.Helper()
	graph.Put(req.Key(), resolve.Entry{
		Request: req,
		Version: mustVersion(t, version),
		Metadata: &registry.PackageMetadata{
			Name:         name,
			Version:      version,
			Dependencies: deps,
		},
	})
}

func req(t *testing.T, name, specRaw string) resolve.DepReq {
	t.Helper()
	return resolve.DepReq{Name: name, Specifier: mustSpec(t, specRaw)}
}

// buildDiamondGraph builds app -> (left, right) -> shared@1.0.0, a single
// transitive package reachable by two independent paths from the same
// root.
func buildDiamondGraph(t *testing.T) (*resolve.Graph, []resolve.DepReq) {
	t.Helper()
	graph := resolve.NewGraph()

	appReq := req(t, "app", "^1.0.0")
	put(t, graph, appReq, "app", "1.0.0", map[string]string{"left": "^1.0.0", "right": "^1.0.0"})

	leftReq := req(t, "left", "^1.0.0")
	put(t, graph, leftReq, "left", "1.0.0", map[string]string{"shared": "^1.0.0"})

	rightReq := req(t, "right", "^1.0.0")
	put(t, graph, rightReq, "right", "1.0.0", map[string]string{"shared": "^1.0.0"})

	sharedReq := req(t, "shared", "^1.0.0")
	put(t, graph, sharedReq, "shared", "1.0.0", nil)

	return graph, []resolve.DepReq{appReq}
}

func chains(paths []Path) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		s := ""
		for _, step := range p {
			s += fmt.Sprintf("%s@%s>", step.Name, step.Version)
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func TestTraceFindsBothPathsThroughADiamond(t *testing.T) {
	graph, roots := buildDiamondGraph(t)

	paths := Trace(graph, roots, "shared", "1.0.0")
	got := chains(paths)
	want := []string{
		"app@1.0.0>left@1.0.0>",
		"app@1.0.0>right@1.0.0>",
	}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("got %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTraceReturnsNilForUnreachableTarget(t *testing.T) {
	graph, roots := buildDiamondGraph(t)

	paths := Trace(graph, roots, "nonexistent", "9.9.9")
	if paths != nil {
		t.Fatalf("expected nil paths, got %v", paths)
	}
}

func TestTraceDirectDependencyIsOneHop(t *testing.T) {
	graph, roots := buildDiamondGraph(t)

	paths := Trace(graph, roots, "left", "1.0.0")
	got := chains(paths)
	want := []string{"app@1.0.0>"}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRenderDOTProducesParsableGraphviz(t *testing.T) {
	graph, roots := buildDiamondGraph(t)
	paths := Trace(graph, roots, "shared", "1.0.0")

	dot, err := RenderDOT(paths)
	if err != nil {
		t.Fatalf("RenderDOT: %v", err)
	}
	if dot == "" {
		t.Fatalf("expected non-empty DOT source")
	}
}

func TestRenderDOTOfEmptyPathsStillProducesAGraph(t *testing.T) {
	dot, err := RenderDOT(nil)
	if err != nil {
		t.Fatalf("RenderDOT(nil): %v", err)
	}
	if dot == "" {
		t.Fatalf("expected non-empty DOT source even for no paths")
	}
}
