package lockfile

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-cmp/cmp"

	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/specifier"
)

func mustSpec(t *testing.T, raw string) specifier.Specifier {
	t.Helper()
	s, err := specifier.Parse(raw)
	if err != nil {
		t.Fatalf("parsing specifier %q: %v", raw, err)
	}
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	graph := resolve.NewGraph()
	req := resolve.DepReq{Name: "left-pad", Specifier: mustSpec(t, "^1.0.0")}
	version := semver.MustParse("1.3.0")
	meta := &registry.PackageMetadata{
		Name:    "left-pad",
		Version: "1.3.0",
		Dist:    registry.Dist{Tarball: "https://x/left-pad-1.3.0.tgz"},
	}
	graph.Put(req.Key(), resolve.Entry{Request: req, Version: version, Metadata: meta})

	data, err := Encode(graph)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	entry, ok := decoded.Get(req.Key())
	if !ok {
		t.Fatalf("expected decoded graph to contain %s", req.Key())
	}
	if entry.Version.Original() != "1.3.0" {
		t.Fatalf("got version %s, want 1.3.0", entry.Version.Original())
	}
	if diff := cmp.Diff(meta, entry.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
	if entry.Request.Name != req.Name || entry.Request.Specifier.String() != req.Specifier.String() || entry.Request.Optional != req.Optional {
		t.Fatalf("request mismatch: got %+v, want %+v", entry.Request, req)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	graph := resolve.NewGraph()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		req := resolve.DepReq{Name: name, Specifier: mustSpec(t, "^1.0.0")}
		graph.Put(req.Key(), resolve.Entry{
			Request:  req,
			Version:  semver.MustParse("1.0.0"),
			Metadata: &registry.PackageMetadata{Name: name, Version: "1.0.0"},
		})
	}
	first, err := Encode(graph)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(graph)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("two encodes of the same graph produced different bytes")
	}
}
