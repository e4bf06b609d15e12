package mcs

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is the 48-bit unique identifier of a node on the network.
type NodeID [6]byte

// ParseNodeID parses a node ID in dotted form ("05.01.01.01.22.00") or as 12
// plain hex digits, optionally prefixed with 0x.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	s = strings.TrimSpace(s)

	if strings.Contains(s, ".") {
		parts := strings.Split(s, ".")
		if len(parts) != len(id) {
			return NodeID{}, fmt.Errorf("invalid node id %q: want 6 dotted bytes", s)
		}
		for i, p := range parts {
			b, err := strconv.ParseUint(p, 16, 8)
			if err != nil {
				return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
			}
			id[i] = byte(b)
		}
		return id, nil
	}

	hex := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(hex) == 0 || len(hex) > 12 {
		return NodeID{}, fmt.Errorf("invalid node id %q: want up to 12 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeIDFromUint64(v), nil
}

// MustParseNodeID is like ParseNodeID but panics on error. Intended for
// constants and tests.
func MustParseNodeID(s string) NodeID {
	id, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NodeIDFromUint64 builds a NodeID from the low 48 bits of v.
func NodeIDFromUint64(v uint64) NodeID {
	var id NodeID
	for i := len(id) - 1; i >= 0; i-- {
		id[i] = byte(v)
		v >>= 8
	}
	return id
}

// Uint64 returns the node ID as an integer.
func (id NodeID) Uint64() uint64 {
	var v uint64
	for _, b := range id {
		v = v<<8 | uint64(b)
	}
	return v
}

// IsZero reports whether id is the unset node ID.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// String returns the dotted form, e.g. "05.01.01.01.22.00".
func (id NodeID) String() string {
	return fmt.Sprintf("%02X.%02X.%02X.%02X.%02X.%02X", id[0], id[1], id[2], id[3], id[4], id[5])
}
