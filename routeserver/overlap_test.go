// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"errors"
	"testing"

	"rsbuilder/common/helpers"
)

func TestValuesOverlap(t *testing.T) {
	cases := []struct {
		Pos          helpers.Pos
		A, B         string
		AllowPrivate bool
		Expected     bool
	}{
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:1", Expected: true},
		{Pos: helpers.Mark(), A: "0:1", B: "0:peer_as", Expected: true},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "1:1", Expected: false},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:0", Expected: false},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:64500", Expected: false},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:65501", Expected: true},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:65501", AllowPrivate: true, Expected: false},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:65535", AllowPrivate: true, Expected: true},
		{Pos: helpers.Mark(), A: "1:2:peer_as", B: "1:2:4200000000", AllowPrivate: true, Expected: false},
		{Pos: helpers.Mark(), A: "1:2:peer_as", B: "1:2:4294967295", AllowPrivate: true, Expected: true},
		{Pos: helpers.Mark(), A: "1:2:peer_as", B: "1:3:10", Expected: false},
		{Pos: helpers.Mark(), A: "0:dyn_val", B: "0:1", AllowPrivate: true, Expected: true},
		{Pos: helpers.Mark(), A: "0:dyn_val", B: "0:peer_as", Expected: true},
		{Pos: helpers.Mark(), A: "0:dyn_val", B: "1:peer_as", Expected: false},
		{Pos: helpers.Mark(), A: "0:peer_as", B: "0:peer_as", Expected: false},
		{Pos: helpers.Mark(), A: "0:1", B: "0:1", Expected: false},
		{Pos: helpers.Mark(), A: "rt:0:peer_as", B: "ro:0:1", Expected: false},
		{Pos: helpers.Mark(), A: "rt:0:peer_as", B: "rt:0:1", Expected: true},
	}
	for _, tc := range cases {
		got := valuesOverlap(tc.A, tc.B, 64500, tc.AllowPrivate)
		if got != tc.Expected {
			t.Errorf("%svaluesOverlap(%q, %q) = %v, expected %v", tc.Pos, tc.A, tc.B, got, tc.Expected)
		}
	}
}

func TestValidateCommunitiesWorkedExample(t *testing.T) {
	g := DefaultGeneral()
	g.RSAS = 64500
	g.Communities = map[string]Community{
		"do_not_announce_to_peer": {Std: "0:peer_as"},
	}
	g.CustomCommunities = map[string]Community{
		"test": {Std: "0:1"},
	}
	err := ValidateCommunities(g)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("ValidateCommunities() error:\n%+v", err)
	}
	expected := []string{
		"Community 'do_not_announce_to_peer' and 'test' overlap: 0:peer_as / 0:1. " +
			"Inbound communities and custom communities can't have overlapping values, " +
			"otherwise they might be scrubbed.",
	}
	if diff := helpers.Diff(cerr.Issues, expected); diff != "" {
		t.Fatalf("ValidateCommunities() (-got, +want):\n%s", diff)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatal("ValidateCommunities() error is not ErrConfiguration")
	}

	// A private ASN does not collide with BIRD
	g.CustomCommunities["test"] = Community{Std: "0:65501"}
	if err := ValidateCommunities(g); err != nil {
		t.Fatalf("ValidateCommunities() error:\n%+v", err)
	}

	// But it does when asked to
	collide := true
	g.PrivateASNsCollideWithPeerAS = &collide
	if err := ValidateCommunities(g); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("ValidateCommunities() error:\n%+v, expected ErrConfiguration", err)
	}

	// And with OpenBGPD by default
	g.PrivateASNsCollideWithPeerAS = nil
	g.Target = "openbgpd"
	if err := ValidateCommunities(g); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("ValidateCommunities() error:\n%+v, expected ErrConfiguration", err)
	}
}

func TestValidateCommunitiesReportsAll(t *testing.T) {
	g := DefaultGeneral()
	g.RSAS = 64500
	g.Communities = map[string]Community{
		"blackholing":             {Std: "0:666"},
		"do_not_announce_to_peer": {Std: "0:peer_as"},
		"reject_cause":            {Std: "0:dyn_val"},
	}
	err := ValidateCommunities(g)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("ValidateCommunities() error:\n%+v", err)
	}
	expected := []string{
		"Community 'blackholing' and 'do_not_announce_to_peer' overlap: 0:666 / 0:peer_as. " +
			"Inbound communities can't have overlapping values, otherwise their meaning could be uncertain.",
		"Community 'reject_cause' and 'blackholing' overlap: 0:dyn_val / 0:666. " +
			"Internal communities can't have overlapping values with any other community.",
		"Community 'reject_cause' and 'do_not_announce_to_peer' overlap: 0:dyn_val / 0:peer_as. " +
			"Internal communities can't have overlapping values with any other community.",
	}
	if diff := helpers.Diff(cerr.Issues, expected); diff != "" {
		t.Fatalf("ValidateCommunities() (-got, +want):\n%s", diff)
	}
}

func TestValidateCommunitiesDuplicates(t *testing.T) {
	g := DefaultGeneral()
	g.RSAS = 64500
	g.Communities = map[string]Community{
		"roa_valid":   {Std: "rs_as:1"},
		"roa_invalid": {Std: "64500:1", Lrg: "64500:1:1"},
	}
	g.CustomCommunities = map[string]Community{
		"colo": {Lrg: "rs_as:1:1"},
	}
	err := ValidateCommunities(g)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("ValidateCommunities() error:\n%+v", err)
	}
	expected := []string{
		"The 'roa_valid.std' community's value (64500:1) has already been used for another community.",
		"The 'colo.lrg' community's value (64500:1:1) has already been used for another community.",
	}
	if diff := helpers.Diff(cerr.Issues, expected); diff != "" {
		t.Fatalf("ValidateCommunities() (-got, +want):\n%s", diff)
	}
}

func TestValidateCommunitiesInboundOutbound(t *testing.T) {
	g := DefaultGeneral()
	g.RSAS = 64500
	g.Communities = map[string]Community{
		"announce_to_peer":         {Lrg: "rs_as:1:peer_as"},
		"origin_present_in_as_set": {Lrg: "rs_as:1:100"},
		"roa_valid":                {Lrg: "rs_as:1:64512"},
		"roa_invalid":              {Lrg: "rs_as:2:100"},
	}
	err := ValidateCommunities(g)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("ValidateCommunities() error:\n%+v", err)
	}
	expected := []string{
		"Community 'announce_to_peer' and 'origin_present_in_as_set' overlap: 64500:1:peer_as / 64500:1:100. " +
			"Inbound communities and outbound communities can't have overlapping values, " +
			"otherwise they might be scrubbed.",
	}
	if diff := helpers.Diff(cerr.Issues, expected); diff != "" {
		t.Fatalf("ValidateCommunities() (-got, +want):\n%s", diff)
	}
}
