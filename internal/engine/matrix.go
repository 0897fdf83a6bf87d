package engine

import (
	"cmp"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// ProtoMap holds the leaves below one destination port.
type ProtoMap map[string]*Counter

// PortMap groups protocols by destination port.
type PortMap map[string]ProtoMap

// DstMap groups ports by destination address.
type DstMap map[string]PortMap

// Growth reports which matrix levels an Add created.
type Growth uint8

const (
	GrewSource Growth = 1 << iota
	GrewDestination
	GrewTuple
)

// Matrix is the communication matrix: srcip -> dstip -> dstport -> proto -> Counter.
// It is append-only and owned by a single run; it is not safe for concurrent use.
type Matrix struct {
	countBytes bool
	src        map[string]DstMap
	tuples     int
}

// NewMatrix creates an empty Matrix. countBytes records whether the
// byte totals of its leaves are meaningful.
func NewMatrix(countBytes bool) *Matrix {
	return &Matrix{
		countBytes: countBytes,
		src:        make(map[string]DstMap),
	}
}

// CountBytes reports whether byte totals were accumulated.
func (m *Matrix) CountBytes() bool {
	return m.countBytes
}

// Len returns the number of distinct tuples.
func (m *Matrix) Len() int {
	return m.tuples
}

// Sources returns the number of distinct source addresses.
func (m *Matrix) Sources() int {
	return len(m.src)
}

// Add counts one occurrence of t and adds the byte values to its totals.
// Missing levels are created on first sight.
func (m *Matrix) Add(t Tuple, sent, rcvd uint64) Growth {
	var g Growth

	dsts, ok := m.src[t.SrcIP]
	if !ok {
		dsts = make(DstMap)
		m.src[t.SrcIP] = dsts
		g |= GrewSource
	}

	ports, ok := dsts[t.DstIP]
	if !ok {
		ports = make(PortMap)
		dsts[t.DstIP] = ports
		g |= GrewDestination
	}

	protos, ok := ports[t.DstPort]
	if !ok {
		protos = make(ProtoMap)
		ports[t.DstPort] = protos
	}

	c, ok := protos[t.Proto]
	if !ok {
		protos[t.Proto] = &Counter{Count: 1, SentBytes: sent, RcvdBytes: rcvd}
		m.tuples++
		return g | GrewTuple
	}

	c.Count++
	c.SentBytes += sent
	c.RcvdBytes += rcvd
	return g
}

// addCounter merges a whole counter into t.
func (m *Matrix) addCounter(t Tuple, c Counter) {
	m.Add(t, c.SentBytes, c.RcvdBytes)
	leaf := m.src[t.SrcIP][t.DstIP][t.DstPort][t.Proto]
	leaf.Count += c.Count - 1
}

// Lookup returns the counter for t.
func (m *Matrix) Lookup(t Tuple) (Counter, bool) {
	c, ok := m.src[t.SrcIP][t.DstIP][t.DstPort][t.Proto]
	if !ok {
		return Counter{}, false
	}
	return *c, true
}

// Walk calls fn for every leaf in display order: each level sorted with
// addresses and numbers compared by value, other keys lexically.
// Walk stops early when fn returns false.
func (m *Matrix) Walk(fn func(t Tuple, c Counter) bool) {
	for _, srcip := range sortedKeys(m.src) {
		dsts := m.src[srcip]
		for _, dstip := range sortedKeys(dsts) {
			ports := dsts[dstip]
			for _, port := range sortedKeys(ports) {
				protos := ports[port]
				for _, proto := range sortedKeys(protos) {
					t := Tuple{SrcIP: srcip, DstIP: dstip, DstPort: port, Proto: proto}
					if !fn(t, *protos[proto]) {
						return
					}
				}
			}
		}
	}
}

// Remap returns a new Matrix with every tuple passed through fn.
// Leaves that collide after remapping are merged.
func (m *Matrix) Remap(fn func(Tuple) Tuple) *Matrix {
	out := NewMatrix(m.countBytes)
	m.Walk(func(t Tuple, c Counter) bool {
		out.addCounter(fn(t), c)
		return true
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareKeys(keys[i], keys[j]) < 0
	})
	return keys
}

// Key kinds in display order.
const (
	kindNumber = iota
	kindAddr
	kindText
)

type sortKey struct {
	kind int
	num  uint64
	addr netip.Addr
	raw  string
}

func parseSortKey(s string) sortKey {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return sortKey{kind: kindNumber, num: n, raw: s}
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return sortKey{kind: kindAddr, addr: a, raw: s}
	}
	return sortKey{kind: kindText, raw: s}
}

// compareKeys orders integers before addresses before other text. Within
// a kind, integers and addresses compare by value and text lexically; the
// raw string breaks remaining ties.
func compareKeys(a, b string) int {
	ka, kb := parseSortKey(a), parseSortKey(b)
	if ka.kind != kb.kind {
		return cmp.Compare(ka.kind, kb.kind)
	}
	switch ka.kind {
	case kindNumber:
		if c := cmp.Compare(ka.num, kb.num); c != 0 {
			return c
		}
	case kindAddr:
		if c := ka.addr.Compare(kb.addr); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}
