package why

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// RenderDOT builds Graphviz DOT source for a set of reverse-dependency
// paths, one edge per Step transition, so it can be piped through
// `dot -Tsvg` for a visual trace. The built source is parsed with
// github.com/goccy/go-graphviz before being returned, so a malformed
// identifier (an unescaped quote in a package name, say) is caught here
// rather than surfacing as a confusing error from a downstream `dot`
// invocation. Grounded on
// matzehuels-stacktower/pkg/render/nodelink.ToDOT's digraph shape
// (boxed, rounded nodes, plain "from" -> "to" edges) and its
// RenderSVG's graphviz.New/ParseBytes pairing for validating DOT text.
func RenderDOT(paths []Path) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("digraph why {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded];\n\n")

	seen := make(map[string]bool)
	for _, path := range paths {
		for _, step := range path {
			id := fmt.Sprintf("%s@%s", step.Name, step.Version)
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&buf, "  %q;\n", id)
		}
	}
	buf.WriteString("\n")

	edges := make(map[string]bool)
	for _, path := range paths {
		for i := 0; i+1 < len(path); i++ {
			from := fmt.Sprintf("%s@%s", path[i].Name, path[i].Version)
			to := fmt.Sprintf("%s@%s", path[i+1].Name, path[i+1].Version)
			edge := from + "->" + to
			if edges[edge] {
				continue
			}
			edges[edge] = true
			fmt.Fprintf(&buf, "  %q -> %q;\n", from, to)
		}
	}

	buf.WriteString("}\n")
	dot := buf.String()

	if err := validate(dot); err != nil {
		return "", fmt.Errorf("rendering why graph: %w", err)
	}
	return dot, nil
}

func validate(dot string) error {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()
	return nil
}
