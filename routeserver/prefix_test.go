// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"net/netip"
	"testing"

	"rsbuilder/common/helpers"
)

func TestPrefixEntryCheck(t *testing.T) {
	cases := []struct {
		Pos   helpers.Pos
		Entry PrefixEntry
		Error bool
	}{
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24")}},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), GE: 24, LE: 32}},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("2001:db8::/32"), LE: 48}},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), LE: 33}, Error: true},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), GE: 23}, Error: true},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), GE: 28, LE: 26}, Error: true},
		{Pos: helpers.Mark(), Entry: PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), Exact: true, LE: 26}, Error: true},
		{Pos: helpers.Mark(), Entry: PrefixEntry{}, Error: true},
	}
	for _, tc := range cases {
		err := tc.Entry.Check()
		if err != nil && !tc.Error {
			t.Errorf("%sCheck() error:\n%+v", tc.Pos, err)
		} else if err == nil && tc.Error {
			t.Errorf("%sCheck() did not error", tc.Pos)
		}
	}
}

func TestPrefixEntryCovers(t *testing.T) {
	entry := PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), LE: 26}
	cases := []struct {
		Prefix   string
		Expected bool
	}{
		{"192.0.2.0/24", true},
		{"192.0.2.128/25", true},
		{"192.0.2.64/26", true},
		{"192.0.2.64/27", false},
		{"192.0.0.0/16", false},
		{"198.51.100.0/24", false},
		{"2001:db8::/32", false},
	}
	for _, tc := range cases {
		if got := entry.Covers(netip.MustParsePrefix(tc.Prefix)); got != tc.Expected {
			t.Errorf("Covers(%s) = %v, expected %v", tc.Prefix, got, tc.Expected)
		}
	}
	exact := PrefixEntry{Prefix: netip.MustParsePrefix("192.0.2.0/24"), Exact: true}
	if exact.Covers(netip.MustParsePrefix("192.0.2.0/25")) {
		t.Error("Covers() accepted a more specific prefix for an exact entry")
	}
}
