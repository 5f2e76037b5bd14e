package resolve

import (
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/errtag"
	"github.com/a-h/nodepm/registry"
)

// TreeNode is one node of a dependency tree built from a resolved Graph
// (spec §4.E "Tree building"). Nodes whose (name, version) pair was
// hoisted to the top level (spec §4.F) are pruned from the tree entirely;
// the installer resolves them through the hoisted root instead.
type TreeNode struct {
	Request  DepReq
	Version  *semver.Version
	Metadata *registry.PackageMetadata
	Children []*TreeNode
}

// IsHoisted reports whether (name, version) was chosen as the top-level
// hoist target for name, in which case a TreeNode for it is pruned from
// nested subtrees.
type IsHoisted func(name, version string) bool

// BuildTrees runs build_trees(root_requests): for each root request, DFS
// through graph's children, skipping any node already satisfied by a
// hoisted entry and cutting cycles along the current ancestor chain.
func BuildTrees(log *slog.Logger, graph *Graph, roots []DepReq, hoisted IsHoisted) ([]*TreeNode, error) {
	b := &treeBuilder{log: log, graph: graph, hoisted: hoisted, ancestors: make(map[string]bool)}
	trees := make([]*TreeNode, 0, len(roots))
	for _, root := range roots {
		if !graph.Has(root.Key()) && root.Optional {
			continue
		}
		node, err := b.build(root)
		if err != nil {
			return nil, err
		}
		if node != nil {
			trees = append(trees, node)
		}
	}
	return trees, nil
}

type treeBuilder struct {
	log       *slog.Logger
	graph     *Graph
	hoisted   IsHoisted
	ancestors map[string]bool
}

// build returns the TreeNode for req, or nil if req was pruned because its
// (name, version) is satisfied by a hoisted entry. req itself (a tree's
// root request) is never pruned by the hoist check: roots are by
// definition where hoisted packages live.
func (b *treeBuilder) build(req DepReq) (*TreeNode, error) {
	entry, ok := b.graph.Get(req.Key())
	if !ok {
		return nil, fmt.Errorf("%w: %s", errtag.ErrLockfileStale, req.Key())
	}

	key := req.Key()
	if b.ancestors[key] {
		b.log.Debug("cycle detected while building dependency tree, eliding", slog.String("request", key))
		return nil, nil
	}
	b.ancestors[key] = true
	defer delete(b.ancestors, key)

	node := &TreeNode{Request: req, Version: entry.Version, Metadata: entry.Metadata}
	for _, child := range childRequests(entry) {
		childEntry, ok := b.graph.Get(child.Key())
		if !ok {
			if child.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %s", errtag.ErrLockfileStale, child.Key())
		}
		if b.hoisted != nil && b.hoisted(childEntry.Metadata.Name, childEntry.Version.Original()) {
			continue
		}
		childNode, err := b.build(child)
		if err != nil {
			return nil, err
		}
		if childNode != nil {
			node.Children = append(node.Children, childNode)
		}
	}
	return node, nil
}
