// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rpki

import (
	"net/netip"

	"github.com/kentik/patricia"
	tree "github.com/kentik/patricia/generics_tree"

	"rsbuilder/routeserver"
)

// ROA is a validated ROA payload.
type ROA struct {
	Prefix    netip.Prefix `json:"prefix" yaml:"prefix"`
	MaxLength int          `json:"max-length" yaml:"max-length"`
	ASN       uint32       `json:"asn" yaml:"asn"`
}

// Entry turns the ROA into a prefix entry usable as a route object.
func (roa ROA) Entry() routeserver.PrefixEntry {
	if roa.Prefix.Bits() == roa.MaxLength {
		return routeserver.PrefixEntry{Prefix: roa.Prefix, Exact: true}
	}
	return routeserver.PrefixEntry{
		Prefix: roa.Prefix,
		GE:     roa.Prefix.Bits(),
		LE:     roa.MaxLength,
	}
}

// State is the result of the origin validation of a route.
type State int

const (
	// Unknown means no ROA covers the route.
	Unknown State = iota
	// Valid means a ROA covers the route and authorizes its origin.
	Valid
	// Invalid means some ROAs cover the route but none authorizes it.
	Invalid
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ROATable allows origin validation of routes. Internally, everything is
// stored as IPv6 (using v4-mapped IPv6 addresses).
type ROATable struct {
	tree *tree.TreeV6[ROA]
	size int
}

// NewROATable creates an empty ROA table.
func NewROATable() *ROATable {
	return &ROATable{tree: tree.NewTreeV6[ROA]()}
}

func toIPv6Address(prefix netip.Prefix) patricia.IPv6Address {
	addr := prefix.Addr()
	bits := prefix.Bits()
	if addr.Is4() {
		bits += 96
	}
	v6 := addr.As16()
	return patricia.NewIPv6Address(v6[:], uint(bits))
}

// Add inserts a ROA in the table. Duplicate ROAs are ignored.
func (t *ROATable) Add(roa ROA) {
	added, _ := t.tree.Add(toIPv6Address(roa.Prefix), roa, func(a, b ROA) bool {
		return a == b
	})
	if added {
		t.size++
	}
}

// Len returns the number of ROAs in the table.
func (t *ROATable) Len() int {
	return t.size
}

// Validate returns the origin validation state of the provided route.
func (t *ROATable) Validate(prefix netip.Prefix, origin uint32) State {
	prefix = prefix.Masked()
	state := Unknown
	for _, roa := range t.tree.FindTags(toIPv6Address(prefix)) {
		if roa.Prefix.Addr().Is4() != prefix.Addr().Is4() {
			// ::/0 covers IPv4-mapped addresses
			continue
		}
		if origin != 0 && roa.ASN == origin && prefix.Bits() <= roa.MaxLength {
			return Valid
		}
		state = Invalid
	}
	return state
}
