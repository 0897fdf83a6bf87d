package output

import (
	"io"
	"strconv"

	"github.com/coffersTech/fwmatrix/internal/engine"
	"github.com/valyala/fastjson"
)

// JSON writes the matrix as one nested object keyed
// srcip -> dstip -> dstport -> proto, with members in display order.
func JSON(w io.Writer, m *engine.Matrix) error {
	var a fastjson.Arena
	root := a.NewObject()

	var path [3]*fastjson.Value
	var prev engine.Tuple
	first := true
	m.Walk(func(t engine.Tuple, c engine.Counter) bool {
		keys := tupleKeys(t)
		for level := changedLevel(prev, t, first); level < 3; level++ {
			parent := root
			if level > 0 {
				parent = path[level-1]
			}
			path[level] = a.NewObject()
			parent.Set(keys[level], path[level])
		}

		leaf := a.NewObject()
		names, values := leafFields(c, m.CountBytes())
		for i, name := range names {
			leaf.Set(name, a.NewNumberString(strconv.FormatUint(values[i], 10)))
		}
		path[2].Set(t.Proto, leaf)

		prev, first = t, false
		return true
	})

	buf := root.MarshalTo(nil)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}
