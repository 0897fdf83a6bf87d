package engine

import (
	"strconv"
	"strings"
)

// IANA protocol numbers with a mnemonic label.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// NormalizeProtocol converts a protocol number to its mnemonic.
// Other integers and non-numeric values (including MissingValue) are
// returned unchanged.
func NormalizeProtocol(raw string) string {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}

	switch n {
	case ProtoICMP:
		return "ICMP"
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	default:
		return raw
	}
}
