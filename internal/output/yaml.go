package output

import (
	"io"
	"strconv"

	"github.com/coffersTech/fwmatrix/internal/engine"
	"gopkg.in/yaml.v3"
)

// YAML writes the matrix as nested mappings in display order.
// Keys are always tagged as strings so ports and protocol numbers stay keys.
func YAML(w io.Writer, m *engine.Matrix) error {
	root := &yaml.Node{Kind: yaml.MappingNode}

	var path [3]*yaml.Node
	var prev engine.Tuple
	first := true
	m.Walk(func(t engine.Tuple, c engine.Counter) bool {
		keys := tupleKeys(t)
		for level := changedLevel(prev, t, first); level < 3; level++ {
			parent := root
			if level > 0 {
				parent = path[level-1]
			}
			path[level] = &yaml.Node{Kind: yaml.MappingNode}
			parent.Content = append(parent.Content, stringNode(keys[level]), path[level])
		}

		leaf := &yaml.Node{Kind: yaml.MappingNode}
		names, values := leafFields(c, m.CountBytes())
		for i, name := range names {
			leaf.Content = append(leaf.Content, stringNode(name), &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   "!!int",
				Value: strconv.FormatUint(values[i], 10),
			})
		}
		path[2].Content = append(path[2].Content, stringNode(t.Proto), leaf)

		prev, first = t, false
		return true
	})

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if len(root.Content) == 0 {
		root.Style = yaml.FlowStyle
	}
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}

func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
