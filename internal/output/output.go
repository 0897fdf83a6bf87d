// Package output renders a communication matrix for people and tools.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/engine"
)

// Format names a renderer.
type Format string

const (
	FormatTree  Format = "tree"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the supported formats in help order.
var Formats = []Format{FormatTree, FormatTable, FormatJSON, FormatYAML}

// Renderer writes a finished matrix to w.
type Renderer interface {
	Render(w io.Writer, m *engine.Matrix) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, m *engine.Matrix) error

func (f RendererFunc) Render(w io.Writer, m *engine.Matrix) error {
	return f(w, m)
}

// New returns the renderer for format.
func New(format Format) (Renderer, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatTree, "":
		return RendererFunc(Tree), nil
	case FormatTable:
		return RendererFunc(Table), nil
	case FormatJSON:
		return RendererFunc(JSON), nil
	case FormatYAML:
		return RendererFunc(YAML), nil
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return nil, fmt.Errorf("unknown output format %q (available: %s)", format, strings.Join(names, ", "))
}

// leafFields returns the leaf value names and values of c in display order.
func leafFields(c engine.Counter, countBytes bool) ([]string, []uint64) {
	if !countBytes {
		return []string{"count"}, []uint64{c.Count}
	}
	return []string{"count", "sentbytes", "rcvdbytes"}, []uint64{c.Count, c.SentBytes, c.RcvdBytes}
}

// changedLevel returns the first key level at which t differs from prev.
func changedLevel(prev, t engine.Tuple, first bool) int {
	switch {
	case first || prev.SrcIP != t.SrcIP:
		return 0
	case prev.DstIP != t.DstIP:
		return 1
	case prev.DstPort != t.DstPort:
		return 2
	}
	return 3
}

func tupleKeys(t engine.Tuple) [4]string {
	return [4]string{t.SrcIP, t.DstIP, t.DstPort, t.Proto}
}
