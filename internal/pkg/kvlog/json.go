package kvlog

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// JSONDecoder turns JSON object lines into Records.
// Nested objects are flattened with dotted keys ("source.ip"); arrays and
// nulls are ignored. Numbers keep their literal text.
type JSONDecoder struct {
	parser fastjson.ParserPool
}

// NewJSONDecoder creates a JSONDecoder.
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

// Decode parses one line. The line must hold a single JSON object.
func (d *JSONDecoder) Decode(line string) (Record, error) {
	p := d.parser.Get()
	defer d.parser.Put(p)

	v, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("expected JSON object: %w", err)
	}

	rec := make(Record, obj.Len())
	flatten(rec, "", obj)
	return rec, nil
}

func flatten(rec Record, prefix string, obj *fastjson.Object) {
	obj.Visit(func(key []byte, val *fastjson.Value) {
		name := string(key)
		if prefix != "" {
			name = prefix + "." + name
		}

		switch val.Type() {
		case fastjson.TypeString:
			b, _ := val.StringBytes()
			rec[name] = string(b)
		case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
			rec[name] = string(val.MarshalTo(nil))
		case fastjson.TypeObject:
			inner, _ := val.Object()
			flatten(rec, name, inner)
		}
	})
}
