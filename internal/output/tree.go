package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/engine"
)

// Tree prints the matrix as an indented tree, one tab per level. Every key
// is on its own line with its children one level deeper; leaf values sit
// below their names.
func Tree(w io.Writer, m *engine.Matrix) error {
	bw := bufio.NewWriter(w)

	var prev engine.Tuple
	first := true
	m.Walk(func(t engine.Tuple, c engine.Counter) bool {
		keys := tupleKeys(t)
		for level := changedLevel(prev, t, first); level < len(keys); level++ {
			writeIndented(bw, level, keys[level])
		}
		names, values := leafFields(c, m.CountBytes())
		for i, name := range names {
			writeIndented(bw, 4, name)
			writeIndented(bw, 5, strconv.FormatUint(values[i], 10))
		}
		prev, first = t, false
		return true
	})

	return bw.Flush()
}

func writeIndented(w *bufio.Writer, depth int, s string) {
	w.WriteString(strings.Repeat("\t", depth))
	w.WriteString(s)
	w.WriteByte('\n')
}
