// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Overlap describes two communities whose values may match the same
// community on the wire.
type Overlap struct {
	A, B           string
	ValueA, ValueB string
	Reason         string
}

// String returns a human-readable description of the overlap.
func (o Overlap) String() string {
	return fmt.Sprintf("Community '%s' and '%s' overlap: %s / %s. %s",
		o.A, o.B, o.ValueA, o.ValueB, o.Reason)
}

// isPrivateASN tells if the ASN is in one of the private ranges.
func isPrivateASN(asn uint64) bool {
	return (asn >= 64512 && asn <= 65534) || (asn >= 4200000000 && asn <= 4294967294)
}

// valuesOverlap compares two values of the same format, field by field.
// Identical values do not overlap: they are reported as duplicates.
func valuesOverlap(a, b string, rsAS uint32, allowPrivateASNs bool) bool {
	partsA := strings.Split(a, ":")
	partsB := strings.Split(b, ":")
	if len(partsA) != len(partsB) {
		return false
	}
	for i := range partsA {
		partA, partB := partsA[i], partsB[i]
		if partA == macroDynVal || partB == macroDynVal {
			if partA == partB {
				continue
			}
			return true
		}
		var concrete string
		switch {
		case partA == macroPeerAS && partB == macroPeerAS:
			continue
		case partA == macroPeerAS:
			concrete = partB
		case partB == macroPeerAS:
			concrete = partA
		default:
			if partA != partB {
				return false
			}
			continue
		}
		asn, err := strconv.ParseUint(concrete, 10, 32)
		if err != nil {
			// Not a number, cannot be a peer ASN
			return false
		}
		switch {
		case asn == uint64(rsAS), asn == 0:
			return false
		case allowPrivateASNs && isPrivateASN(asn):
			return false
		}
		return true
	}
	return false
}

// communitiesOverlap tells if two communities overlap in any format. It
// returns the first overlapping values.
func communitiesOverlap(a, b ResolvedCommunity, rsAS uint32, allowPrivateASNs bool) (string, string, bool) {
	for _, format := range formats {
		valueA, okA := a.Values[format]
		valueB, okB := b.Values[format]
		if !okA || !okB {
			continue
		}
		if valuesOverlap(valueA, valueB, rsAS, allowPrivateASNs) {
			return valueA, valueB, true
		}
	}
	return "", "", false
}

// FindOverlaps checks every pair of communities of classes that must not
// collide and returns all the overlapping pairs. Inbound communities are
// checked against outbound, custom and other inbound communities. Internal
// communities are checked against all the other communities. Private ASNs
// are accepted next to the peer_as macro only when checking inbound
// communities against outbound or custom ones, and only if the target BGP
// daemon does not make them collide.
func FindOverlaps(communities []ResolvedCommunity, rsAS uint32, privateASNsCollide bool) []Overlap {
	byClass := map[Class][]ResolvedCommunity{}
	for _, c := range communities {
		byClass[c.Class] = append(byClass[c.Class], c)
	}
	overlaps := []Overlap{}
	check := func(a, b ResolvedCommunity, allowPrivateASNs bool, reason string) {
		if valueA, valueB, ok := communitiesOverlap(a, b, rsAS, allowPrivateASNs); ok {
			overlaps = append(overlaps, Overlap{
				A: a.Tag, B: b.Tag,
				ValueA: valueA, ValueB: valueB,
				Reason: reason,
			})
		}
	}

	for _, a := range byClass[Inbound] {
		for _, b := range byClass[Outbound] {
			check(a, b, !privateASNsCollide,
				"Inbound communities and outbound communities can't have overlapping values, "+
					"otherwise they might be scrubbed.")
		}
	}
	for _, a := range byClass[Inbound] {
		for _, b := range byClass[Custom] {
			check(a, b, !privateASNsCollide,
				"Inbound communities and custom communities can't have overlapping values, "+
					"otherwise they might be scrubbed.")
		}
	}
	inbound := byClass[Inbound]
	for i := range inbound {
		for j := i + 1; j < len(inbound); j++ {
			check(inbound[i], inbound[j], false,
				"Inbound communities can't have overlapping values, "+
					"otherwise their meaning could be uncertain.")
		}
	}
	for i, a := range communities {
		for j, b := range communities {
			if i == j || a.Class != Internal {
				continue
			}
			if b.Class == Internal && j < i {
				// Already checked the other way around
				continue
			}
			check(a, b, false,
				"Internal communities can't have overlapping values with any other community.")
		}
	}
	return overlaps
}

// FindDuplicates returns an issue for each value used by more than one
// community.
func FindDuplicates(communities []ResolvedCommunity) []string {
	seen := map[string]bool{}
	duplicates := []string{}
	for _, c := range communities {
		for _, format := range formats {
			value, ok := c.Values[format]
			if !ok {
				continue
			}
			if seen[value] {
				duplicates = append(duplicates, fmt.Sprintf(
					"The '%s.%s' community's value (%s) has already been used for another community.",
					c.Tag, format, value))
				continue
			}
			seen[value] = true
		}
	}
	return duplicates
}

// ValidateCommunities resolves the communities of the general configuration
// and checks there is neither duplicate nor overlapping values. All the
// issues are returned at once in a *ConfigurationError.
func ValidateCommunities(g General) error {
	communities, err := ResolveCommunities(g)
	var problems issues
	var cerr *ConfigurationError
	if errors.As(err, &cerr) {
		problems = append(problems, cerr.Issues...)
	}
	problems = append(problems, FindDuplicates(communities)...)
	for _, overlap := range FindOverlaps(communities, g.RSAS, g.PrivateASNsCollide()) {
		problems = append(problems, overlap.String())
	}
	return problems.err()
}
