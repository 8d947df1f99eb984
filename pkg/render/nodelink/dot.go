package nodelink

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/meazyme/v-allo/pkg/spatial"
)

// Options configures node-link diagram rendering.
type Options struct {
	// MinShare drops edges whose proportion is below this value.
	MinShare float64
	// Detailed adds the share to every edge label and the record count to
	// every node label. When false, only IDs are shown.
	Detailed bool
}

// ToDOT converts proportion records to an undirected Graphviz DOT graph.
// Regions and nodes become vertices; every record becomes an edge whose pen
// width grows with its share. Regions are drawn as boxes and nodes as
// ellipses, so the bipartite structure is visible in any layout.
//
// Vertex IDs are prefixed with "r:" and "n:" since region and node IDs may
// collide.
func ToDOT(records []spatial.Proportion, opts Options) string {
	kept := make([]spatial.Proportion, 0, len(records))
	for _, r := range records {
		if r.Value >= opts.MinShare {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].RegionID != kept[j].RegionID {
			return kept[i].RegionID < kept[j].RegionID
		}
		return kept[i].NodeID < kept[j].NodeID
	})

	regionDegree := make(map[string]int)
	nodeDegree := make(map[string]int)
	for _, r := range kept {
		regionDegree[r.RegionID]++
		nodeDegree[r.NodeID]++
	}

	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  layout=neato;\n")
	buf.WriteString("  overlap=false;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontsize=12, style=filled, fillcolor=white];\n")
	buf.WriteString("\n")

	for _, id := range sortedKeys(regionDegree) {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=box];\n", "r:"+id, fmtLabel(id, regionDegree[id], opts.Detailed))
	}
	for _, id := range sortedKeys(nodeDegree) {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, fillcolor=lightblue];\n", "n:"+id, fmtLabel(id, nodeDegree[id], opts.Detailed))
	}

	buf.WriteString("\n")
	for _, r := range kept {
		attrs := fmt.Sprintf("penwidth=%s", strconv.FormatFloat(penWidth(r.Value), 'f', 2, 64))
		if opts.Detailed {
			attrs += fmt.Sprintf(", label=%q", strconv.FormatFloat(r.Value, 'f', 3, 64))
		}
		fmt.Fprintf(&buf, "  %q -- %q [%s];\n", "r:"+r.RegionID, "n:"+r.NodeID, attrs)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(id string, degree int, detailed bool) string {
	if !detailed {
		return id
	}
	return fmt.Sprintf("%s\n%d links", id, degree)
}

// penWidth maps a share in [0, 1] to a line width in points.
func penWidth(share float64) float64 {
	return 0.5 + 4*share
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
