package engine

import "fmt"

// MissingValue stands in for absent fields under PolicyPermissive.
const MissingValue = "<missing>"

// Tuple is the key path of one matrix leaf.
// Addresses and ports are opaque strings; Proto is the normalized label.
type Tuple struct {
	SrcIP   string
	DstIP   string
	DstPort string
	Proto   string
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s -> %s:%s/%s", t.SrcIP, t.DstIP, t.DstPort, t.Proto)
}

// Counter is the leaf value of the matrix.
// Byte totals are only meaningful when the matrix counts bytes.
type Counter struct {
	Count     uint64
	SentBytes uint64
	RcvdBytes uint64
}
