package query

import (
	"strings"

	"github.com/coffersTech/fwmatrix/internal/pkg/kvlog"
)

// Filter is a compiled filter expression.
type Filter struct {
	expr string
	root Node
}

// Compile parses expr into a Filter. An empty expression matches everything.
func Compile(expr string) (*Filter, error) {
	root, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, root: root}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether rec satisfies the filter. A nil Filter matches all.
func (f *Filter) Match(rec kvlog.Record) bool {
	if f == nil {
		return true
	}
	return Match(f.root, rec)
}

// Match evaluates node against rec. Comparisons ignore case.
func Match(node Node, rec kvlog.Record) bool {
	if node == nil {
		return true
	}

	switch n := node.(type) {
	case BinaryExpr:
		if n.Op == "AND" {
			return Match(n.Left, rec) && Match(n.Right, rec)
		}
		return Match(n.Left, rec) || Match(n.Right, rec)
	case FieldExpr:
		value, ok := rec[n.Key]
		matched := ok && matchValue(value, n.Value)
		return matched != n.Negate
	case TextExpr:
		return matchText(n.Text, rec)
	case NotExpr:
		return !Match(n.Expr, rec)
	default:
		return false
	}
}

// matchValue compares case-insensitively; a trailing '*' matches a prefix.
func matchValue(fieldValue, want string) bool {
	if prefix, ok := strings.CutSuffix(want, "*"); ok {
		return len(fieldValue) >= len(prefix) && strings.EqualFold(fieldValue[:len(prefix)], prefix)
	}
	return strings.EqualFold(fieldValue, want)
}

func matchText(text string, rec kvlog.Record) bool {
	q := strings.ToLower(text)
	for _, v := range rec {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}
