package install

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/config"
	"github.com/a-h/nodepm/metrics"
	"github.com/a-h/nodepm/plan"
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
		t.Fatalf("specifier.Parse(%q): %v", raw, err)
	}
	return s
}

// writeStoreEntry writes a minimal extracted package (mimicking store.Store's
// output) at storeRoot/<name>@<version>/.
func writeStoreEntry(t *testing.T, storeRoot, name, version string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(storeRoot, name+"@"+version)
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "_complete"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile sentinel: %v", err)
	}
}

func node(t *testing.T, name, version string, bin json.RawMessage, scripts map[string]string, children ...*resolve.TreeNode) *resolve.TreeNode {
	t.Helper()
	v, err := semver.NewVersion(version)
	if err != nil {
		t.Fatalf("semver.NewVersion: %v", err)
	}
	return &resolve.TreeNode{
		Request:  resolve.DepReq{Name: name, Specifier: mustSpec(t, "^"+version)},
		Version:  v,
		Metadata: &registry.PackageMetadata{Name: name, Version: version, Bin: bin, Scripts: scripts},
		Children: children,
	}
}

func TestInstallHardlinksTopLevelPackage(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "left-pad", "1.0.0", map[string]string{
		"package.json": `{"name":"left-pad","version":"1.0.0"}`,
		"index.js":     "module.exports = 1",
	})

	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{
		"left-pad": node(t, "left-pad", "1.0.0", nil, nil),
	}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	pkgDir := filepath.Join(targetRoot, "node_modules", "left-pad")
	data, err := os.ReadFile(filepath.Join(pkgDir, "index.js"))
	if err != nil {
		t.Fatalf("reading installed file: %v", err)
	}
	if string(data) != "module.exports = 1" {
		t.Fatalf("got %q", data)
	}

	if _, err := os.Stat(filepath.Join(pkgDir, "_complete")); err == nil {
		t.Fatalf("store sentinel should not be copied into the install tree")
	}

	marker, err := os.ReadFile(filepath.Join(pkgDir, installedMarker))
	if err != nil || string(marker) != "1.0.0" {
		t.Fatalf("expected installed marker 1.0.0, got %q err=%v", marker, err)
	}
}

func TestInstallNestsChildOnVersionConflict(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "app", "1.0.0", map[string]string{"package.json": `{}`})
	writeStoreEntry(t, storeRoot, "a", "2.0.0", map[string]string{"package.json": `{}`})

	child := node(t, "a", "2.0.0", nil, nil)
	app := node(t, "app", "1.0.0", nil, nil, child)

	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{"app": app}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	nestedPkgJSON := filepath.Join(targetRoot, "node_modules", "app", "node_modules", "a", "package.json")
	if _, err := os.Stat(nestedPkgJSON); err != nil {
		t.Fatalf("expected nested child install at %s: %v", nestedPkgJSON, err)
	}
}

func TestInstallWiresExecutableShims(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "mytool", "1.0.0", map[string]string{
		"bin/mytool.js": "#!/usr/bin/env node\nconsole.log('hi')",
	})

	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{
		"mytool": node(t, "mytool", "1.0.0", []byte(`"bin/mytool.js"`), nil),
	}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	shimPath := filepath.Join(targetRoot, "node_modules", ".bin", "mytool")
	target, err := os.Readlink(shimPath)
	if err != nil {
		t.Fatalf("expected shim symlink: %v", err)
	}
	if want := filepath.Join("..", "mytool", "bin/mytool.js"); target != want {
		t.Fatalf("shim target = %q, want %q", target, want)
	}
}

func TestInstallRunsLifecycleScriptsWhenAllowed(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "withscripts", "1.0.0", map[string]string{"package.json": `{}`})

	marker := filepath.Join(targetRoot, "ran-postinstall")
	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{
		"withscripts": node(t, "withscripts", "1.0.0", nil, map[string]string{
			"postinstall": "touch " + marker,
		}),
	}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{AllowInstallScripts: true}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected postinstall script to have run: %v", err)
	}
}

func TestInstallSkipsScriptsWhenNotAllowed(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "withscripts", "1.0.0", map[string]string{"package.json": `{}`})

	marker := filepath.Join(targetRoot, "ran-postinstall")
	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{
		"withscripts": node(t, "withscripts", "1.0.0", nil, map[string]string{
			"postinstall": "touch " + marker,
		}),
	}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{AllowInstallScripts: false}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("postinstall script should not have run without allow_install_scripts")
	}
}

func TestInstallSkipsReinstallWhenMarkerMatches(t *testing.T) {
	storeRoot := t.TempDir()
	targetRoot := t.TempDir()
	writeStoreEntry(t, storeRoot, "left-pad", "1.0.0", map[string]string{"package.json": `{}`})

	p := &plan.Plan{Trees: map[string]*resolve.TreeNode{
		"left-pad": node(t, "left-pad", "1.0.0", nil, nil),
	}}

	in := New(testLogger(), storeRoot, targetRoot, &config.Config{}, metrics.Metrics{})
	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("first Install: %v", err)
	}

	pkgDir := filepath.Join(targetRoot, "node_modules", "left-pad")
	sentinel := filepath.Join(pkgDir, "canary")
	if err := os.WriteFile(sentinel, []byte("untouched"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := in.Install(context.Background(), p); err != nil {
		t.Fatalf("second Install: %v", err)
	}

	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("expected second install to skip and preserve canary file: %v", err)
	}
}
