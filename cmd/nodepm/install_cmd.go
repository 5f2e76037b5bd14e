package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/a-h/nodepm/cmd/globals"
	"github.com/a-h/nodepm/install"
	"github.com/a-h/nodepm/plan"
	"github.com/a-h/nodepm/resolve"
)

// InstallCmd materializes the manifest's dependencies into node_modules
// (spec §6 "install").
type InstallCmd struct{}

func (cmd *InstallCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	p, err := s.buildPlan(ctx)
	if err != nil {
		return err
	}

	if ok, err := install.SatisfiesReceipt(ctx, s.workingDir, p); err == nil && ok && p.Satisfies(s.manifest) {
		s.log.Info("install receipt matches, nothing to do")
		return nil
	}

	return s.install(ctx, p)
}

// buildPlan runs the shared resolve -> hoist pipeline over the manifest's
// own direct dependencies, downloading tarballs into the store as
// packages are pinned (spec §4.E step 3's "fire the download as soon as
// pinned" optimization).
func (s *session) buildPlan(ctx context.Context) (*plan.Plan, error) {
	roots, err := s.manifestRoots()
	if err != nil {
		return nil, err
	}

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	return s.resolveAndPlan(ctx, graph, roots, true)
}

// install ensures every package in p's store entries is present (catching
// anything the resolver's background downloads missed, e.g. when
// resolveAndPlan skipped resolution because --immutable found every root
// already pinned) and then materializes node_modules.
func (s *session) install(ctx context.Context, p *plan.Plan) error {
	if err := downloadTrees(ctx, s.store, p.Trees); err != nil {
		return err
	}

	in := install.New(s.log, s.storeRoot, s.workingDir, s.cfg, s.metrics)
	if err := in.Install(ctx, p); err != nil {
		return fmt.Errorf("installing: %w", err)
	}
	s.log.Info("install complete", slog.String("nodeModules", s.nodeModules))
	return nil
}

// downloadTrees ensures every node reachable from trees has a complete
// store entry, recursing into children.
func downloadTrees(ctx context.Context, st downloader, trees map[string]*resolve.TreeNode) error {
	for _, tree := range trees {
		if err := downloadNode(ctx, st, tree); err != nil {
			return err
		}
	}
	return nil
}

func downloadNode(ctx context.Context, st downloader, node *resolve.TreeNode) error {
	dep, err := resolve.NewPinnedDependency(node.Version, node.Metadata)
	if err != nil {
		return fmt.Errorf("building pinned dependency for %s: %w", node.Metadata.Name, err)
	}
	if err := st.Download(ctx, dep); err != nil {
		return fmt.Errorf("downloading %s: %w", dep.Key(), err)
	}
	for _, child := range node.Children {
		if err := downloadNode(ctx, st, child); err != nil {
			return err
		}
	}
	return nil
}

// downloader is the subset of *store.Store downloadTrees needs, declared
// locally so tests can stub it.
type downloader interface {
	Download(ctx context.Context, dep resolve.PinnedDependency) error
}
