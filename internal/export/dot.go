package export

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/graph"
)

// DOTExporter writes Graphviz DOT text.
type DOTExporter struct{}

// Export writes g to path as a DOT digraph.
func (DOTExporter) Export(ctx context.Context, g *graph.Graph, path string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Writing DOT file.", "path", path, "vertices", g.Len(), "edges", len(g.Edges))
	return writeFile(path, func(w io.Writer) error {
		return WriteDOT(w, g)
	})
}

// WriteDOT renders g. Vertex statements carry the entity id, vertex type,
// color, shape, status and code pointer as attributes; edges are unlabeled.
func WriteDOT(w io.Writer, g *graph.Graph) error {
	if _, err := fmt.Fprintf(w, "digraph G {\n"); err != nil {
		return err
	}
	for i, v := range g.Vertices {
		_, err := fmt.Fprintf(w,
			"%d[label=\"%s %d\",vertex_id=\"%d\",vertex_type=\"%s\",color=\"%s\",shape=\"%s\",status=\"%s\",codeptr_ra=\"%#x\"];\n",
			i, v.Kind, v.EntityID, v.EntityID, v.Kind, v.Color, v.Shape, v.Status, uint64(v.CodeLocation))
		if err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if _, err := fmt.Fprintf(w, "%d->%d ;\n", e.Parent, e.Child); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "}\n")
	return err
}
