// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rpki

import (
	"net/netip"
	"testing"

	"rsbuilder/common/helpers"
	"rsbuilder/routeserver"
)

func TestROATableValidate(t *testing.T) {
	table := NewROATable()
	for _, roa := range []ROA{
		{Prefix: netip.MustParsePrefix("192.0.2.0/24"), MaxLength: 24, ASN: 65501},
		{Prefix: netip.MustParsePrefix("198.51.100.0/22"), MaxLength: 24, ASN: 65502},
		{Prefix: netip.MustParsePrefix("198.51.100.0/22"), MaxLength: 22, ASN: 65503},
		{Prefix: netip.MustParsePrefix("2001:db8::/32"), MaxLength: 48, ASN: 65501},
		{Prefix: netip.MustParsePrefix("2001:db8::/32"), MaxLength: 48, ASN: 65501},
		{Prefix: netip.MustParsePrefix("::/0"), MaxLength: 0, ASN: 0},
	} {
		table.Add(roa)
	}
	if table.Len() != 5 {
		t.Errorf("Len() == %d, expected 5", table.Len())
	}

	cases := []struct {
		Pos      helpers.Pos
		Prefix   string
		Origin   uint32
		Expected State
	}{
		{helpers.Mark(), "192.0.2.0/24", 65501, Valid},
		{helpers.Mark(), "192.0.2.0/24", 65502, Invalid},
		{helpers.Mark(), "192.0.2.0/25", 65501, Invalid},
		{helpers.Mark(), "192.0.2.0/23", 65501, Unknown},
		{helpers.Mark(), "203.0.113.0/24", 65501, Unknown},
		{helpers.Mark(), "198.51.100.0/22", 65502, Valid},
		{helpers.Mark(), "198.51.101.0/24", 65502, Valid},
		{helpers.Mark(), "198.51.101.0/24", 65503, Invalid},
		{helpers.Mark(), "198.51.100.0/22", 65503, Valid},
		{helpers.Mark(), "198.51.100.0/25", 65502, Invalid},
		{helpers.Mark(), "2001:db8:1::/48", 65501, Valid},
		{helpers.Mark(), "2001:db8:1::/64", 65501, Invalid},
		// AS0 ROA covering everything
		{helpers.Mark(), "2001:db9::/32", 65501, Invalid},
	}
	for _, tc := range cases {
		got := table.Validate(netip.MustParsePrefix(tc.Prefix), tc.Origin)
		if got != tc.Expected {
			t.Errorf("%sValidate(%s, AS%d) == %s, expected %s", tc.Pos, tc.Prefix, tc.Origin, got, tc.Expected)
		}
	}
}

func TestROAEntry(t *testing.T) {
	cases := []struct {
		ROA      ROA
		Expected routeserver.PrefixEntry
	}{
		{
			ROA: ROA{Prefix: netip.MustParsePrefix("192.0.2.0/24"), MaxLength: 24},
			Expected: routeserver.PrefixEntry{
				Prefix: netip.MustParsePrefix("192.0.2.0/24"),
				Exact:  true,
			},
		}, {
			ROA: ROA{Prefix: netip.MustParsePrefix("2001:db8::/32"), MaxLength: 48},
			Expected: routeserver.PrefixEntry{
				Prefix: netip.MustParsePrefix("2001:db8::/32"),
				GE:     32,
				LE:     48,
			},
		},
	}
	for _, tc := range cases {
		if diff := helpers.Diff(tc.ROA.Entry(), tc.Expected); diff != "" {
			t.Errorf("Entry() (-got, +want):\n%s", diff)
		}
	}
}
