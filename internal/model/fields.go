package model

import (
	"fmt"
	"strings"
)

// Fields maps the logical fields used by the aggregator to the physical
// column names of a log source.
type Fields struct {
	SrcIP     string `yaml:"srcip"`
	DstIP     string `yaml:"dstip"`
	DstPort   string `yaml:"dstport"`
	Proto     string `yaml:"proto"`
	SentBytes string `yaml:"sentbytes"`
	RcvdBytes string `yaml:"rcvdbytes"`
}

// DefaultFields returns the Fortigate column names.
func DefaultFields() Fields {
	return Fields{
		SrcIP:     "srcip",
		DstIP:     "dstip",
		DstPort:   "dstport",
		Proto:     "proto",
		SentBytes: "sentbyte",
		RcvdBytes: "rcvdbyte",
	}
}

// Merge returns f with every empty name taken from fallback.
func (f Fields) Merge(fallback Fields) Fields {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Fields{
		SrcIP:     pick(f.SrcIP, fallback.SrcIP),
		DstIP:     pick(f.DstIP, fallback.DstIP),
		DstPort:   pick(f.DstPort, fallback.DstPort),
		Proto:     pick(f.Proto, fallback.Proto),
		SentBytes: pick(f.SentBytes, fallback.SentBytes),
		RcvdBytes: pick(f.RcvdBytes, fallback.RcvdBytes),
	}
}

// Validate checks that every name is set and free of whitespace or '='.
// countBytes controls whether the byte columns are required.
func (f Fields) Validate(countBytes bool) error {
	check := []struct{ logical, name string }{
		{"srcip", f.SrcIP},
		{"dstip", f.DstIP},
		{"dstport", f.DstPort},
		{"proto", f.Proto},
	}
	if countBytes {
		check = append(check,
			struct{ logical, name string }{"sentbytes", f.SentBytes},
			struct{ logical, name string }{"rcvdbytes", f.RcvdBytes},
		)
	}
	for _, c := range check {
		if c.name == "" {
			return fmt.Errorf("field name for %s is empty", c.logical)
		}
		if strings.ContainsAny(c.name, " \t=") {
			return fmt.Errorf("field name %q for %s contains whitespace or '='", c.name, c.logical)
		}
	}
	return nil
}
