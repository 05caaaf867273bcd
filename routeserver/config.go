// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"math"
	"net/netip"
)

// General is the general configuration of the route server.
type General struct {
	// RSAS is the ASN of the route server.
	RSAS uint32 `validate:"min=1"`
	// RouterID is the router ID of the route server.
	RouterID netip.Addr `validate:"required"`
	// Target is the BGP daemon the configuration is built for.
	Target string `validate:"oneof=bird openbgpd"`
	// PrependRSAS tells if the ASN of the route server is prepended.
	PrependRSAS bool
	// PathHiding enables path hiding mitigation.
	PathHiding bool
	// Passive makes BGP sessions passive.
	Passive bool
	// Filtering contains the filtering settings.
	Filtering Filtering
	// Communities maps the name of a well-known function to its BGP
	// communities.
	Communities map[string]Community
	// CustomCommunities are communities attached to routes on a per-client
	// basis.
	CustomCommunities map[string]Community
	// PrivateASNsCollideWithPeerAS tells if communities using private ASNs
	// collide with communities using the peer_as macro. When not set, this
	// depends on the target BGP daemon.
	PrivateASNsCollideWithPeerAS *bool
	// RTTThresholds are the RTT values (in ms) used to tag routes. They
	// must be in ascending order.
	RTTThresholds []uint
}

// Filtering contains the filtering settings.
type Filtering struct {
	IRRDB                   IRRDBFiltering
	RPKIBGPOriginValidation RPKIFiltering
	MaxPrefix               MaxPrefix
	NeverViaRouteServers    NeverViaRouteServers
}

// NeverViaRouteServers lists networks whose routes should never be
// received from the route server.
type NeverViaRouteServers struct {
	// ASNs is a static list of such networks.
	ASNs []uint32 `validate:"dive,min=1"`
	// PeeringDB adds networks with "info_never_via_route_servers" set on
	// PeeringDB.
	PeeringDB bool
}

// IRRDBFiltering contains the settings for filtering based on IRR data.
type IRRDBFiltering struct {
	// EnforceOriginInASSet rejects routes whose origin is not in the
	// AS-SETs of the client.
	EnforceOriginInASSet bool
	// EnforcePrefixInASSet rejects routes whose prefix is not in the
	// route objects of the client.
	EnforcePrefixInASSet bool
	// TagASSet tags routes depending on their presence in AS-SETs.
	TagASSet bool
	// AllowLongerPrefixes accepts more specific prefixes of route objects.
	AllowLongerPrefixes bool
	// PeeringDB uses the AS-SETs registered on PeeringDB when a client
	// has no AS-SET configured.
	PeeringDB bool
	// UseRPKIROAsAsRouteObjects uses RPKI ROAs as route objects.
	UseRPKIROAsAsRouteObjects bool
	// UseARINBulkWhoisData uses ARIN bulk whois data as route objects.
	UseARINBulkWhoisData bool
	// UseRegistroBRBulkWhoisData uses Registro.br whois data as route
	// objects.
	UseRegistroBRBulkWhoisData bool
}

// RPKIFiltering contains settings for RPKI origin validation.
type RPKIFiltering struct {
	Enabled       bool
	RejectInvalid bool
}

// MaxPrefix contains settings for max-prefix limits.
type MaxPrefix struct {
	// PeeringDB uses the values from PeeringDB when a client has no limit.
	PeeringDB bool
	// GeneralLimitIPv4 is the limit used when nothing else applies.
	GeneralLimitIPv4 uint
	// GeneralLimitIPv6 is the limit used when nothing else applies.
	GeneralLimitIPv6 uint
	// Action is what to do when the limit is reached.
	Action string `validate:"omitempty,oneof=shutdown restart block warning"`
	// PeeringDBIncrement is applied to the values from PeeringDB.
	PeeringDBIncrement PeeringDBIncrement
}

// PeeringDBIncrement raises a limit found on PeeringDB. The absolute value
// is added first, then the result is raised by the relative percentage.
type PeeringDBIncrement struct {
	Absolute uint
	Relative uint
}

// Apply returns the incremented limit.
func (i PeeringDBIncrement) Apply(limit uint) uint {
	return uint(math.Round(float64(limit+i.Absolute) * (1 + float64(i.Relative)/100)))
}

// Community contains the values of a BGP community in each format. Empty
// values are not used.
type Community struct {
	Std string `json:"std,omitempty" yaml:"std,omitempty"`
	Lrg string `json:"lrg,omitempty" yaml:"lrg,omitempty"`
	Ext string `json:"ext,omitempty" yaml:"ext,omitempty"`
}

// DefaultGeneral returns the default general configuration.
func DefaultGeneral() General {
	return General{
		Target:     "bird",
		PathHiding: true,
		Passive:    true,
		Filtering: Filtering{
			IRRDB: IRRDBFiltering{
				TagASSet: true,
			},
			RPKIBGPOriginValidation: RPKIFiltering{
				RejectInvalid: true,
			},
			MaxPrefix: MaxPrefix{
				GeneralLimitIPv4: 170000,
				GeneralLimitIPv6: 12000,
				Action:           "shutdown",
				PeeringDBIncrement: PeeringDBIncrement{
					Absolute: 100,
					Relative: 15,
				},
			},
		},
	}
}

// PrivateASNsCollide tells if a private ASN used in a community may collide
// with a community using the peer_as macro. BIRD can remove communities by
// range, excluding private ASNs, OpenBGPD cannot.
func (g General) PrivateASNsCollide() bool {
	if g.PrivateASNsCollideWithPeerAS != nil {
		return *g.PrivateASNsCollideWithPeerAS
	}
	return g.Target != "bird"
}

// Client is a client of the route server.
type Client struct {
	// ID identifies the client. It defaults to AS<asn>_<n>.
	ID string
	// ASN is the ASN of the client.
	ASN uint32 `validate:"min=1"`
	// IP are the IP addresses of the client.
	IP []netip.Addr `validate:"min=1,dive,required"`
	// Description is a free-form description.
	Description string
	// Cfg is the client-specific configuration, overriding the general one.
	Cfg ClientCfg
}

// ClientCfg is the client-specific configuration.
type ClientCfg struct {
	Filtering               ClientFiltering
	AttachCustomCommunities []string
}

// ClientFiltering contains client-specific filtering settings.
type ClientFiltering struct {
	IRRDB     ClientIRRDBFiltering
	MaxPrefix ClientMaxPrefix
}

// ClientIRRDBFiltering contains client-specific settings for IRR data.
type ClientIRRDBFiltering struct {
	// ASSets are the AS-SETs of the client.
	ASSets []string `validate:"dive,asset"`
	// EnforceOriginInASSet overrides the general setting.
	EnforceOriginInASSet *bool
	// EnforcePrefixInASSet overrides the general setting.
	EnforcePrefixInASSet *bool
	// WhiteListPref are prefixes always accepted from the client.
	WhiteListPref []PrefixEntry
	// WhiteListASN are origin ASNs always accepted from the client.
	WhiteListASN []uint32
}

// ClientMaxPrefix contains client-specific max-prefix settings.
type ClientMaxPrefix struct {
	LimitIPv4 uint
	LimitIPv6 uint
	// PeeringDB overrides the general setting.
	PeeringDB *bool
	Action    string `validate:"omitempty,oneof=shutdown restart block warning"`
}

// ASN contains settings for an ASN. The key in the configuration is
// AS<asn>.
type ASN struct {
	ASSets []string `validate:"dive,asset"`
}

// EnforceOriginInASSet tells if the origin of routes received from the
// client should be in its AS-SETs.
func (c Client) EnforceOriginInASSet(g General) bool {
	if v := c.Cfg.Filtering.IRRDB.EnforceOriginInASSet; v != nil {
		return *v
	}
	return g.Filtering.IRRDB.EnforceOriginInASSet
}

// EnforcePrefixInASSet tells if the prefix of routes received from the
// client should be covered by its route objects.
func (c Client) EnforcePrefixInASSet(g General) bool {
	if v := c.Cfg.Filtering.IRRDB.EnforcePrefixInASSet; v != nil {
		return *v
	}
	return g.Filtering.IRRDB.EnforcePrefixInASSet
}

// NeedsIRRData tells if IRR data has to be fetched for this client.
func (c Client) NeedsIRRData(g General) bool {
	return c.EnforceOriginInASSet(g) || c.EnforcePrefixInASSet(g) || g.Filtering.IRRDB.TagASSet
}

// UsePeeringDBMaxPrefix tells if PeeringDB should be queried for the
// max-prefix limits of the client.
func (c Client) UsePeeringDBMaxPrefix(g General) bool {
	if v := c.Cfg.Filtering.MaxPrefix.PeeringDB; v != nil {
		return *v
	}
	return g.Filtering.MaxPrefix.PeeringDB
}
