// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package builder

import (
	"net/netip"

	"rsbuilder/enricher/bundle"
	"rsbuilder/enricher/lastversion"
	"rsbuilder/routeserver"
)

// Context is the result of a build. It contains everything needed to
// render the configuration of the route server.
type Context struct {
	RSAS        uint32              `json:"rs-as" yaml:"rs-as"`
	RouterID    netip.Addr          `json:"router-id" yaml:"router-id"`
	Target      string              `json:"target" yaml:"target"`
	IPVersion   int                 `json:"ip-version,omitempty" yaml:"ip-version,omitempty"`
	Clients     []Client            `json:"clients" yaml:"clients"`
	Bundles     []bundle.Info       `json:"as-set-bundles" yaml:"as-set-bundles"`
	Communities []Community         `json:"communities" yaml:"communities"`
	RPKIROAs    RouteObjects        `json:"rpki-roas,omitempty" yaml:"rpki-roas,omitempty"`
	ARINWhois   RouteObjects        `json:"arin-whois-records,omitempty" yaml:"arin-whois-records,omitempty"`
	RegistroBR  RouteObjects        `json:"registrobr-whois-records,omitempty" yaml:"registrobr-whois-records,omitempty"`
	LastVersion *lastversion.Result `json:"last-version,omitempty" yaml:"last-version,omitempty"`

	NeverViaRouteServersASNs []uint32 `json:"never-via-route-servers-asns,omitempty" yaml:"never-via-route-servers-asns,omitempty"`
	RTTThresholds            []uint   `json:"rtt-thresholds,omitempty" yaml:"rtt-thresholds,omitempty"`
}

// RouteObjects maps an origin ASN to its authorized prefixes.
type RouteObjects map[uint32][]routeserver.PrefixEntry

// Client is a client of the route server with its resolved settings.
type Client struct {
	ID                      string       `json:"id" yaml:"id"`
	ASN                     uint32       `json:"asn" yaml:"asn"`
	IP                      []netip.Addr `json:"ip" yaml:"ip"`
	Description             string       `json:"description,omitempty" yaml:"description,omitempty"`
	Bundles                 []string     `json:"as-set-bundle-ids" yaml:"as-set-bundle-ids"`
	EnforceOriginInASSet    bool         `json:"enforce-origin-in-as-set" yaml:"enforce-origin-in-as-set"`
	EnforcePrefixInASSet    bool         `json:"enforce-prefix-in-as-set" yaml:"enforce-prefix-in-as-set"`
	MaxPrefix               MaxPrefix    `json:"max-prefix" yaml:"max-prefix"`
	AttachCustomCommunities []string     `json:"attach-custom-communities,omitempty" yaml:"attach-custom-communities,omitempty"`

	// RTT maps an IP address of the client to its RTT in milliseconds.
	RTT map[string]float64 `json:"rtt,omitempty" yaml:"rtt,omitempty"`
}

// MaxPrefix contains the max-prefix limits of a client. They are not set
// when no action is configured.
type MaxPrefix struct {
	LimitIPv4 uint   `json:"limit-ipv4,omitempty" yaml:"limit-ipv4,omitempty"`
	LimitIPv6 uint   `json:"limit-ipv6,omitempty" yaml:"limit-ipv6,omitempty"`
	Action    string `json:"action,omitempty" yaml:"action,omitempty"`
}

// Community is a validated BGP community.
type Community struct {
	Tag   string `json:"tag" yaml:"tag"`
	Class string `json:"class" yaml:"class"`
	Std   string `json:"std,omitempty" yaml:"std,omitempty"`
	Lrg   string `json:"lrg,omitempty" yaml:"lrg,omitempty"`
	Ext   string `json:"ext,omitempty" yaml:"ext,omitempty"`
}

func newCommunity(c routeserver.ResolvedCommunity) Community {
	return Community{
		Tag:   c.Tag,
		Class: c.Class.String(),
		Std:   c.Values[routeserver.Standard],
		Lrg:   c.Values[routeserver.Large],
		Ext:   c.Values[routeserver.Extended],
	}
}
