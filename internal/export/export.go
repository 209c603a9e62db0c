// Package export writes ancestry graphs to disk for offline visualization.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/taskancestry/internal/graph"
)

// ErrUnknownFormat is returned by ForFormat for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown export format")

const (
	FormatDOT     = "dot"
	FormatMsgpack = "msgpack"
)

// Exporter writes a graph to path.
type Exporter interface {
	Export(ctx context.Context, g *graph.Graph, path string) error
}

// ForFormat returns the exporter for format. An empty format is inferred
// from the extension of path, defaulting to DOT.
func ForFormat(format, path string) (Exporter, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".msgpack", ".mpk":
			format = FormatMsgpack
		default:
			format = FormatDOT
		}
	}
	switch strings.ToLower(format) {
	case FormatDOT:
		return DOTExporter{}, nil
	case FormatMsgpack:
		return MsgpackExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// writeFile creates path and hands a buffered writer to write.
func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
