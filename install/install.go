// Package install implements the install executor (spec §4.H): it walks
// a hoisted Plan, hardlink-materializes every package from the
// content-addressed store into node_modules/, wires executable shims, and
// (when configured) runs install-lifecycle scripts.
//
// Grounded on npm/save/save.go's SliceIterator/iter.Seq work-queue shape
// (push discovered children onto the same queue while draining it),
// generalized from a channel of package specs to download into an
// errgroup over tree nodes to materialize (filesystem work bounded by a
// semaphore), matching
// npm/download/download.go's processDependencies channel-driven fanout
// for the concurrency shape.
package install

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/a-h/nodepm/config"
	"github.com/a-h/nodepm/errtag"
	"github.com/a-h/nodepm/metrics"
	"github.com/a-h/nodepm/plan"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/store"
)

// maxConcurrency bounds simultaneous package materializations, matching
// the concurrency budget download.go applies to network fetches.
const maxConcurrency = 10

// installedMarker records the version last materialized into a package
// directory, so a second install of an unchanged tree can skip the
// hardlink walk for that package.
const installedMarker = ".nodepm-installed"

// lifecycleScripts run in this fixed order (spec §4.H), independent of a
// package's own declared script order.
var lifecycleScripts = []string{"preinstall", "install", "postinstall"}

// Installer materializes a Plan into a node_modules tree rooted at
// targetRoot, reading package contents from a store rooted at storeRoot.
type Installer struct {
	log        *slog.Logger
	storeRoot  string
	targetRoot string
	cfg        *config.Config
	metrics    metrics.Metrics
	sem        *semaphore.Weighted
}

// New creates an Installer. cfg gates install-script execution; m records
// install/script-failure counters (the zero metrics.Metrics value is a
// valid no-op).
func New(log *slog.Logger, storeRoot, targetRoot string, cfg *config.Config, m metrics.Metrics) *Installer {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Installer{log: log, storeRoot: storeRoot, targetRoot: targetRoot, cfg: cfg, metrics: m, sem: semaphore.NewWeighted(maxConcurrency)}
}

// Install materializes every tree in p under targetRoot/node_modules,
// concurrently, each package before its own children, then wires .bin
// shims for the top-level packages.
func (in *Installer) Install(ctx context.Context, p *plan.Plan) error {
	nodeModulesRoot := filepath.Join(in.targetRoot, "node_modules")
	if err := os.MkdirAll(nodeModulesRoot, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", nodeModulesRoot, err)
	}

	names := make([]string, 0, len(p.Trees))
	for name := range p.Trees {
		names = append(names, name)
	}
	sort.Strings(names)

	// No SetLimit here: installNode enqueues its own children via g.Go once
	// its own work finishes, so a limited group can deadlock once every
	// slot is held by a goroutine blocked trying to enqueue a child (no
	// worker can return to free a slot). Concurrency is bounded instead by
	// in.sem, acquired only around the actual filesystem work, so g.Go
	// itself never blocks.
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		tree := p.Trees[name]
		g.Go(func() error {
			return in.installNode(ctx, g, tree, nodeModulesRoot)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := in.wireShims(p, nodeModulesRoot); err != nil {
		return err
	}

	return writeReceipt(in.targetRoot, p)
}

// installNode materializes node into parentNodeModules/<name>, then
// enqueues its children against a node_modules directory nested under the
// just-materialized package (spec's "task completes -> synchronously
// enqueue its children" shape).
func (in *Installer) installNode(ctx context.Context, g *errgroup.Group, node *resolve.TreeNode, parentNodeModules string) error {
	pkgDir := filepath.Join(parentNodeModules, node.Metadata.Name)

	changed, err := in.materializeBounded(ctx, node, pkgDir)
	if err != nil {
		return fmt.Errorf("materializing %s@%s: %w", node.Metadata.Name, node.Version.Original(), err)
	}

	if changed && in.cfg.AllowInstallScripts {
		if err := in.runLifecycleScriptsBounded(ctx, node, pkgDir, parentNodeModules); err != nil {
			return err
		}
	}

	if len(node.Children) == 0 {
		return nil
	}
	childNodeModules := filepath.Join(pkgDir, "node_modules")
	for _, child := range node.Children {
		child := child
		g.Go(func() error {
			return in.installNode(ctx, g, child, childNodeModules)
		})
	}
	return nil
}

// materializeBounded acquires in.sem before calling materialize and
// releases it before returning, so the maxConcurrency cap applies to
// actual filesystem work rather than to task enqueueing.
func (in *Installer) materializeBounded(ctx context.Context, node *resolve.TreeNode, pkgDir string) (changed bool, err error) {
	if err := in.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer in.sem.Release(1)
	return in.materialize(ctx, node, pkgDir)
}

// runLifecycleScriptsBounded is runLifecycleScripts under the same
// filesystem-work semaphore materializeBounded uses.
func (in *Installer) runLifecycleScriptsBounded(ctx context.Context, node *resolve.TreeNode, pkgDir, nodeModules string) error {
	if err := in.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer in.sem.Release(1)
	return in.runLifecycleScripts(ctx, node, pkgDir, nodeModules)
}

// materialize hardlinks node's store contents into pkgDir, skipping the
// walk entirely if pkgDir already carries a matching installedMarker
// (spec's verify-then-skip, applied per package rather than only at the
// whole-plan level).
func (in *Installer) materialize(ctx context.Context, node *resolve.TreeNode, pkgDir string) (changed bool, err error) {
	version := node.Version.Original()
	markerPath := filepath.Join(pkgDir, installedMarker)
	if existing, err := os.ReadFile(markerPath); err == nil && strings.TrimSpace(string(existing)) == version {
		in.log.Debug("package already installed, skipping", slog.String("package", node.Metadata.Name), slog.String("version", version))
		return false, nil
	}

	dep, err := resolve.NewPinnedDependency(node.Version, node.Metadata)
	if err != nil {
		return false, err
	}
	srcDir := filepath.Join(in.storeRoot, store.PackageDir(dep))

	if err := os.RemoveAll(pkgDir); err != nil {
		return false, fmt.Errorf("clearing stale install directory %s: %w", pkgDir, err)
	}
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return false, fmt.Errorf("creating %s: %w", pkgDir, err)
	}

	if err := hardlinkTree(srcDir, pkgDir); err != nil {
		return false, err
	}

	if err := os.WriteFile(markerPath, []byte(version), 0o644); err != nil {
		return false, fmt.Errorf("writing installed marker for %s: %w", node.Metadata.Name, err)
	}

	in.metrics.IncrementInstall(ctx, node.Metadata.Name)
	return true, nil
}

// hardlinkTree walks src and hardlinks every regular file into the
// identical relative path under dst, creating directories as needed.
// store's own "_complete" sentinel is excluded: it belongs to the store's
// bookkeeping, not the installed package contents.
func hardlinkTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "_complete" {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.Link(path, target); err != nil {
			return fmt.Errorf("hardlinking %s to %s: %w", path, target, err)
		}
		return nil
	})
}

// wireShims creates node_modules/.bin entries for every top-level
// package's bins (spec's "run once, after installing tree roots"), as
// relative symlinks to the package's declared bin path, falling back to
// "<relative_path>.js" when the bare path doesn't exist.
func (in *Installer) wireShims(p *plan.Plan, nodeModulesRoot string) error {
	binDir := filepath.Join(nodeModulesRoot, ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}

	names := make([]string, 0, len(p.Trees))
	for name := range p.Trees {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tree := p.Trees[name]
		bins, err := tree.Metadata.Bins()
		if err != nil {
			return fmt.Errorf("reading bins for %s: %w", tree.Metadata.Name, err)
		}
		for command, relPath := range bins {
			if strings.Contains(command, "/") {
				continue
			}
			if err := in.wireShim(binDir, tree.Metadata.Name, command, relPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *Installer) wireShim(binDir, pkgName, command, relPath string) error {
	pkgDir := filepath.Join(binDir, "..", pkgName)

	target := relPath
	if _, err := os.Stat(filepath.Join(pkgDir, target)); err != nil {
		if _, err := os.Stat(filepath.Join(pkgDir, target+".js")); err == nil {
			target = target + ".js"
		}
	}

	linkPath := filepath.Join(binDir, command)
	_ = os.Remove(linkPath)

	symlinkTarget := filepath.Join("..", pkgName, target)
	if err := os.Symlink(symlinkTarget, linkPath); err != nil {
		return fmt.Errorf("creating shim %s: %w", linkPath, err)
	}
	if err := os.Chmod(filepath.Join(pkgDir, target), 0o755); err != nil {
		in.log.Debug("could not mark shim target executable", slog.String("command", command), slog.String("error", err.Error()))
	}
	return nil
}

// runLifecycleScripts runs preinstall/install/postinstall in order, cwd
// set to pkgDir, PATH prefixed with the nearest node_modules/.bin.
func (in *Installer) runLifecycleScripts(ctx context.Context, node *resolve.TreeNode, pkgDir, nodeModules string) error {
	for _, name := range lifecycleScripts {
		cmdline, ok := node.Metadata.Scripts[name]
		if !ok || cmdline == "" {
			continue
		}
		if err := in.runScript(ctx, node.Metadata.Name, name, cmdline, pkgDir, nodeModules); err != nil {
			in.metrics.IncrementInstallScriptFailure(ctx, node.Metadata.Name, name)
			return err
		}
	}
	return nil
}

func (in *Installer) runScript(ctx context.Context, pkgName, scriptName, cmdline, cwd, nodeModules string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = cwd
	binDir := filepath.Join(nodeModules, ".bin")
	cmd.Env = append(os.Environ(), "PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	in.log.Info("running install script", slog.String("package", pkgName), slog.String("script", scriptName))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s@%s %s: %s", errtag.ErrInstallScriptFailed, pkgName, scriptName, err, stderr.String())
	}
	return nil
}
