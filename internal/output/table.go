package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/engine"
)

// Separator delimits table columns.
const Separator = ";"

// TableHeader returns the header row for a matrix with or without byte totals.
func TableHeader(countBytes bool) string {
	cols := []string{"srcip", "dstip", "dport", "proto", "count"}
	if countBytes {
		cols = append(cols, "sentbytes", "rcvdbytes")
	}
	return strings.Join(cols, Separator)
}

// Table prints one delimited row per tuple below a header row.
func Table(w io.Writer, m *engine.Matrix) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(TableHeader(m.CountBytes()))
	bw.WriteByte('\n')

	row := make([]string, 0, 7)
	m.Walk(func(t engine.Tuple, c engine.Counter) bool {
		row = append(row[:0], t.SrcIP, t.DstIP, t.DstPort, t.Proto)
		_, values := leafFields(c, m.CountBytes())
		for _, v := range values {
			row = append(row, strconv.FormatUint(v, 10))
		}
		bw.WriteString(strings.Join(row, Separator))
		bw.WriteByte('\n')
		return true
	})

	return bw.Flush()
}
