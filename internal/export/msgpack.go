package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/taskancestry/internal/ctxlog"
	"github.com/vk/taskancestry/internal/graph"
)

// Document is the msgpack encoding of a graph.
type Document struct {
	ID       string           `msgpack:"id"`
	TakenAt  time.Time        `msgpack:"taken_at"`
	Vertices []DocumentVertex `msgpack:"vertices"`
	Edges    [][2]int         `msgpack:"edges"`
}

// DocumentVertex is one vertex of a Document.
type DocumentVertex struct {
	EntityID     uint64 `msgpack:"entity_id"`
	Kind         string `msgpack:"vertex_kind"`
	CodeLocation uint64 `msgpack:"code_location"`
	Color        string `msgpack:"color"`
	Shape        string `msgpack:"shape"`
	Status       string `msgpack:"status"`
}

// NewDocument converts g into its serializable form.
func NewDocument(g *graph.Graph) *Document {
	doc := &Document{
		ID:       g.ID.String(),
		TakenAt:  g.TakenAt,
		Vertices: make([]DocumentVertex, len(g.Vertices)),
		Edges:    make([][2]int, len(g.Edges)),
	}
	for i, v := range g.Vertices {
		doc.Vertices[i] = DocumentVertex{
			EntityID:     v.EntityID,
			Kind:         v.Kind.String(),
			CodeLocation: uint64(v.CodeLocation),
			Color:        v.Color,
			Shape:        v.Shape,
			Status:       v.Status.String(),
		}
	}
	for i, e := range g.Edges {
		doc.Edges[i] = [2]int{e.Parent, e.Child}
	}
	return doc
}

// MsgpackExporter writes the binary Document encoding.
type MsgpackExporter struct{}

// Export writes g to path as msgpack.
func (MsgpackExporter) Export(ctx context.Context, g *graph.Graph, path string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Writing msgpack file.", "path", path, "vertices", g.Len(), "edges", len(g.Edges))
	return writeFile(path, func(w io.Writer) error {
		return WriteMsgpack(w, g)
	})
}

// WriteMsgpack encodes g to w.
func WriteMsgpack(w io.Writer, g *graph.Graph) error {
	if err := msgpack.NewEncoder(w).Encode(NewDocument(g)); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

// ReadMsgpack decodes a Document written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (*Document, error) {
	var doc Document
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &doc, nil
}
