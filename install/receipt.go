package install

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/a-h/nodepm/plan"
	"github.com/a-h/nodepm/resolve"
)

// receiptDir/receiptFile is spec §4.D's "node_modules/.<internal>/plan.json
// — install receipt": a flat name -> version map covering every tree in
// the plan, top-level and nested, written once a whole Install call
// succeeds. Checking it is a cheaper whole-plan verify-then-skip than
// walking every package's installedMarker (Testable Property 6), checked
// by CLI callers once a Plan has been built and before installing it.
const (
	receiptDir  = ".nodepm"
	receiptFile = "plan.json"
)

// ReceiptPath returns the install receipt's path under targetRoot.
func ReceiptPath(targetRoot string) string {
	return filepath.Join(targetRoot, "node_modules", receiptDir, receiptFile)
}

// writeReceipt flattens every node in p's trees (recursively, since a
// nested install counts too) into a name -> version map and writes it to
// targetRoot's receipt path.
func writeReceipt(targetRoot string, p *plan.Plan) error {
	versions := make(map[string]string)
	names := make([]string, 0, len(p.Trees))
	for name := range p.Trees {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		flattenReceipt(p.Trees[name], versions)
	}

	data, err := json.MarshalIndent(versions, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding install receipt: %w", err)
	}

	path := ReceiptPath(targetRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func flattenReceipt(node *resolve.TreeNode, out map[string]string) {
	out[node.Metadata.Name] = node.Version.Original()
	for _, c := range node.Children {
		flattenReceipt(c, out)
	}
}

// SatisfiesReceipt reports whether targetRoot already carries an install
// receipt whose versions match every node of p's trees (top-level and
// nested, flattened by name) exactly, without touching the
// store or walking any package directory. A mismatch (missing receipt,
// different version, or a name the receipt never recorded) means the
// caller must fall through to Install.
func SatisfiesReceipt(ctx context.Context, targetRoot string, p *plan.Plan) (bool, error) {
	data, err := os.ReadFile(ReceiptPath(targetRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading install receipt: %w", err)
	}

	var recorded map[string]string
	if err := json.Unmarshal(data, &recorded); err != nil {
		return false, fmt.Errorf("decoding install receipt: %w", err)
	}

	want := make(map[string]string)
	for name, tree := range p.Trees {
		flattenReceipt(tree, want)
	}

	if len(want) != len(recorded) {
		return false, nil
	}
	for name, version := range want {
		if recorded[name] != version {
			return false, nil
		}
	}
	return true, nil
}
