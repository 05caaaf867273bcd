// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package builder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"rsbuilder/common/helpers"
	"rsbuilder/enricher/bundle"
	"rsbuilder/enricher/peeringdb"
	"rsbuilder/enricher/rpki"
	"rsbuilder/enricher/rtt"
	"rsbuilder/enricher/whoisdump"
	"rsbuilder/routeserver"
)

// state is what is shared between the phases of a build.
type state struct {
	policy   routeserver.Config
	clients  []routeserver.Client
	registry *bundle.Registry
	bundles  map[string][]string
	pdb      map[uint32]peeringdb.Info
	rtts     map[netip.Addr]float64
	result   *Context
}

func (c *Component) afis() []int {
	if c.config.IPVersion != 0 {
		return []int{c.config.IPVersion}
	}
	return []int{4, 6}
}

func afiOf(prefix netip.Prefix) int {
	if prefix.Addr().Is4() {
		return 4
	}
	return 6
}

func (c *Component) build(ctx context.Context) (*Context, error) {
	s := state{
		policy:   c.policy,
		registry: bundle.NewRegistry(c.r),
		bundles:  map[string][]string{},
		pdb:      map[uint32]peeringdb.Info{},
		rtts:     map[netip.Addr]float64{},
	}
	s.policy.Clients = slices.Clone(c.policy.Clients)

	phases := []struct {
		name string
		fn   func(context.Context, *state) error
	}{
		{"validate", c.validatePhase},
		{"peeringdb", c.peeringDBPhase},
		{"never-via-route-servers", c.neverViaRouteServersPhase},
		{"bundles", c.bundlesPhase},
		{"irrdb", c.irrDBPhase},
		{"rpki", c.rpkiPhase},
		{"whois", c.whoisPhase},
		{"rtt", c.rttPhase},
		{"last-version", c.lastVersionPhase},
		{"max-prefix", c.maxPrefixPhase},
	}
	for _, phase := range phases {
		if err := c.phase(phase.name, func() error { return phase.fn(ctx, &s) }); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBuild, err)
		}
	}
	s.result.Bundles = s.registry.Export()
	return s.result, nil
}

// validatePhase checks the whole configuration. Every issue is logged
// before failing.
func (c *Component) validatePhase(_ context.Context, s *state) error {
	s.policy.Normalize()
	if err := s.policy.Validate(); err != nil {
		var cerr *routeserver.ConfigurationError
		if errors.As(err, &cerr) {
			for _, issue := range cerr.Issues {
				c.r.Error().Msg(issue)
			}
		}
		return err
	}
	communities, err := routeserver.ResolveCommunities(s.policy.General)
	if err != nil {
		return err
	}

	general := s.policy.General
	s.result = &Context{
		RSAS:          general.RSAS,
		RouterID:      general.RouterID,
		Target:        general.Target,
		IPVersion:     c.config.IPVersion,
		Clients:       []Client{},
		Communities:   []Community{},
		RTTThresholds: general.RTTThresholds,
	}
	for _, community := range communities {
		s.result.Communities = append(s.result.Communities, newCommunity(community))
	}

	for _, client := range s.policy.Clients {
		if c.config.IPVersion != 0 {
			ips := []netip.Addr{}
			for _, ip := range client.IP {
				if (ip.Is4() && c.config.IPVersion == 4) || (!ip.Is4() && c.config.IPVersion == 6) {
					ips = append(ips, ip)
				}
			}
			if len(ips) == 0 {
				c.r.Debug().Str("client", client.ID).Msg("client skipped, no address for this IP version")
				continue
			}
			client.IP = ips
		}
		s.clients = append(s.clients, client)
	}
	return nil
}

// needsPeeringDBASSets tells if the AS-SETs of the client should be
// retrieved from PeeringDB.
func (s *state) needsPeeringDBASSets(client routeserver.Client) bool {
	general := s.policy.General
	return general.Filtering.IRRDB.PeeringDB &&
		client.NeedsIRRData(general) &&
		len(client.Cfg.Filtering.IRRDB.ASSets) == 0 &&
		len(s.policy.ASSetsForASN(client.ASN)) == 0
}

// needsPeeringDBMaxPrefix tells if the max-prefix limits of the client
// should be retrieved from PeeringDB.
func (c *Component) needsPeeringDBMaxPrefix(s *state, client routeserver.Client) bool {
	if maxPrefixAction(s.policy.General, client) == "" || !client.UsePeeringDBMaxPrefix(s.policy.General) {
		return false
	}
	for _, afi := range c.afis() {
		if clientLimit(client, afi) == 0 {
			return true
		}
	}
	return false
}

// peeringDBPhase retrieves info from PeeringDB for the clients needing
// them.
func (c *Component) peeringDBPhase(ctx context.Context, s *state) error {
	asns := []uint32{}
	for _, client := range s.clients {
		if s.needsPeeringDBASSets(client) || c.needsPeeringDBMaxPrefix(s, client) {
			asns = append(asns, client.ASN)
		}
	}
	slices.Sort(asns)
	asns = slices.Compact(asns)
	if len(asns) == 0 {
		return nil
	}
	if c.d.PeeringDB == nil {
		return errors.New("PeeringDB is needed but not available")
	}
	c.r.Info().Int("asns", len(asns)).Msg("retrieving info from PeeringDB")
	infos, err := c.d.PeeringDB.Resolve(ctx, asns)
	if err != nil {
		return err
	}
	s.pdb = infos
	return nil
}

// bundlesPhase builds the list of AS-SET bundles. For each client, the
// bundle for AS<asn> is always used. Then, the first available source of
// AS-SETs is used: the client configuration, the "asns" section,
// PeeringDB.
func (c *Component) bundlesPhase(_ context.Context, s *state) error {
	general := s.policy.General
	for _, key := range slices.Sorted(maps.Keys(s.policy.ASNs)) {
		if asSets := s.policy.ASNs[key].ASSets; len(asSets) > 0 {
			if _, err := s.registry.Register(asSets, ""); err != nil {
				return err
			}
		}
	}

	for _, client := range s.clients {
		if !client.NeedsIRRData(general) {
			continue
		}
		consumer := fmt.Sprintf("client %s", client.ID)
		kinds := []bundle.Kind{bundle.OriginASNs}
		if client.EnforcePrefixInASSet(general) || general.Filtering.IRRDB.TagASSet {
			kinds = append(kinds, bundle.Prefixes)
		}
		register := func(names []string) error {
			b, err := s.registry.Register(names, consumer, kinds...)
			if err != nil {
				return err
			}
			if !slices.Contains(s.bundles[client.ID], b.ID) {
				s.bundles[client.ID] = append(s.bundles[client.ID], b.ID)
			}
			return nil
		}

		if err := register([]string{fmt.Sprintf("AS%d", client.ASN)}); err != nil {
			return err
		}
		irrdb := client.Cfg.Filtering.IRRDB
		if len(irrdb.WhiteListASN) > 0 || len(irrdb.WhiteListPref) > 0 {
			b, err := s.registry.RegisterAllowList(client.ID, irrdb.WhiteListASN, irrdb.WhiteListPref)
			if err != nil {
				return err
			}
			if !slices.Contains(s.bundles[client.ID], b.ID) {
				s.bundles[client.ID] = append(s.bundles[client.ID], b.ID)
			}
		}

		if asSets := irrdb.ASSets; len(asSets) > 0 {
			if err := register(asSets); err != nil {
				return err
			}
			continue
		}
		if asSets := s.policy.ASSetsForASN(client.ASN); len(asSets) > 0 {
			if err := register(asSets); err != nil {
				return err
			}
			continue
		}
		if info, ok := s.pdb[client.ASN]; ok && len(info.ASSets) > 0 && s.needsPeeringDBASSets(client) {
			c.r.Info().Msgf("No AS-SETs provided for the '%s' client. Using AS%d + those obtained from PeeringDB: %s.",
				client.ID, client.ASN, strings.Join(info.ASSets, ", "))
			if err := register(info.ASSets); err != nil {
				return err
			}
			continue
		}
		c.r.Warn().Msgf("No AS-SETs provided for the '%s' client. Only AS%d will be expanded.",
			client.ID, client.ASN)
	}
	s.registry.Prune()
	s.registry.Seal()
	return nil
}

// irrDBPhase retrieves origin ASNs and prefixes of each bundle.
func (c *Component) irrDBPhase(ctx context.Context, s *state) error {
	if len(s.registry.Fetchable(bundle.OriginASNs)) == 0 && len(s.registry.Fetchable(bundle.Prefixes)) == 0 {
		return nil
	}
	if c.d.IRRDB == nil {
		return errors.New("IRR data is needed but not available")
	}
	if err := c.d.IRRDB.Resolve(ctx, s.registry, c.afis(), s.policy.General.Filtering.IRRDB.AllowLongerPrefixes); err != nil {
		return err
	}
	if c.config.IPVersion != 0 {
		other := 10 - c.config.IPVersion
		for _, b := range s.registry.All() {
			s.registry.SetPrefixes(b, other, nil)
		}
	}
	return nil
}

// originASNs returns all the origin ASNs authorized by at least one
// bundle.
func (s *state) originASNs() map[uint32]bool {
	origins := map[uint32]bool{}
	for _, b := range s.registry.All() {
		for _, asn := range s.registry.ASNs(b) {
			origins[asn] = true
		}
	}
	return origins
}

// rpkiPhase retrieves ROAs. When origin validation is disabled, only ROAs
// of authorized origin ASNs are kept, to be used as route objects.
func (c *Component) rpkiPhase(ctx context.Context, s *state) error {
	filtering := s.policy.General.Filtering
	originValidation := filtering.RPKIBGPOriginValidation.Enabled
	if !originValidation && !filtering.IRRDB.UseRPKIROAsAsRouteObjects {
		return nil
	}
	if c.d.RPKI == nil {
		return errors.New("RPKI ROAs are needed but not available")
	}
	var origins map[uint32]bool
	if !originValidation {
		origins = s.originASNs()
	}
	result, err := c.d.RPKI.Load(ctx, origins)
	if err != nil {
		return err
	}
	s.result.RPKIROAs = c.roaRouteObjects(result)
	return nil
}

func (c *Component) roaRouteObjects(result *rpki.Result) RouteObjects {
	objects := RouteObjects{}
	for asn, roas := range result.ByOrigin {
		for _, roa := range roas {
			if !slices.Contains(c.afis(), afiOf(roa.Prefix)) {
				continue
			}
			objects[asn] = append(objects[asn], roa.Entry())
		}
	}
	return objects
}

// whoisPhase retrieves route objects from bulk whois dumps.
func (c *Component) whoisPhase(ctx context.Context, s *state) error {
	irrdb := s.policy.General.Filtering.IRRDB
	if !irrdb.UseARINBulkWhoisData && !irrdb.UseRegistroBRBulkWhoisData {
		return nil
	}
	origins := s.originASNs()
	if len(origins) == 0 {
		return nil
	}
	if c.d.WhoisDump == nil {
		return errors.New("whois dumps are needed but not available")
	}
	for _, dump := range []struct {
		enabled bool
		kind    whoisdump.Dump
		target  *RouteObjects
	}{
		{irrdb.UseARINBulkWhoisData, whoisdump.ARIN, &s.result.ARINWhois},
		{irrdb.UseRegistroBRBulkWhoisData, whoisdump.RegistroBR, &s.result.RegistroBR},
	} {
		if !dump.enabled {
			continue
		}
		c.r.Info().Msgf("Updating entries from the %s Whois DB dump...", dump.kind)
		records, err := c.d.WhoisDump.Load(ctx, dump.kind, origins)
		if err != nil {
			return err
		}
		*dump.target = c.whoisRouteObjects(records, irrdb.AllowLongerPrefixes)
	}
	return nil
}

func (c *Component) whoisRouteObjects(records whoisdump.Records, allowLongerPrefixes bool) RouteObjects {
	objects := RouteObjects{}
	for asn, prefixes := range records {
		for _, prefix := range prefixes {
			if !slices.Contains(c.afis(), afiOf(prefix)) {
				continue
			}
			entry := routeserver.PrefixEntry{Prefix: prefix, Exact: true}
			if allowLongerPrefixes {
				entry = routeserver.PrefixEntry{
					Prefix: prefix,
					GE:     prefix.Bits(),
					LE:     prefix.Addr().BitLen(),
				}
			}
			objects[asn] = append(objects[asn], entry)
		}
	}
	return objects
}

// neverViaRouteServersPhase collects the networks whose routes should
// never be received from the route server.
func (c *Component) neverViaRouteServersPhase(ctx context.Context, s *state) error {
	settings := s.policy.General.Filtering.NeverViaRouteServers
	asns := slices.Clone(settings.ASNs)
	if settings.PeeringDB {
		if c.d.PeeringDB == nil {
			return errors.New("PeeringDB data is needed but not available")
		}
		pdbASNs, err := c.d.PeeringDB.NeverViaRouteServers(ctx)
		if err != nil {
			return err
		}
		asns = append(asns, pdbASNs...)
	}
	slices.Sort(asns)
	s.result.NeverViaRouteServersASNs = slices.Compact(asns)
	return nil
}

// rttPhase retrieves the RTT of every client address when a program to
// get them is configured.
func (c *Component) rttPhase(ctx context.Context, s *state) error {
	if c.d.RTT == nil || !c.d.RTT.Enabled() {
		if len(s.policy.General.RTTThresholds) > 0 {
			c.r.Warn().Msg("RTT thresholds are configured but no RTT getter is available")
		}
		return nil
	}
	targets := []rtt.Target{}
	for _, client := range s.clients {
		for _, ip := range client.IP {
			targets = append(targets, rtt.Target{ClientID: client.ID, ASN: client.ASN, IP: ip})
		}
	}
	rtts, err := c.d.RTT.Resolve(ctx, targets)
	if err != nil {
		return err
	}
	s.rtts = rtts
	return nil
}

// lastVersionPhase checks for a newer release. It never fails.
func (c *Component) lastVersionPhase(ctx context.Context, s *state) error {
	if c.d.LastVersion == nil {
		return nil
	}
	result, err := c.d.LastVersion.Check(ctx, helpers.RsbuilderVersion)
	if err != nil {
		c.r.Warn().Err(err).Msg("cannot check for a new release")
		return nil
	}
	if result.Latest != "" {
		s.result.LastVersion = &result
	}
	return nil
}

func maxPrefixAction(general routeserver.General, client routeserver.Client) string {
	if action := client.Cfg.Filtering.MaxPrefix.Action; action != "" {
		return action
	}
	return general.Filtering.MaxPrefix.Action
}

func clientLimit(client routeserver.Client, afi int) uint {
	if afi == 4 {
		return client.Cfg.Filtering.MaxPrefix.LimitIPv4
	}
	return client.Cfg.Filtering.MaxPrefix.LimitIPv6
}

// maxPrefixPhase computes the max-prefix limits and completes the
// clients: the client limit, else the incremented PeeringDB value, else
// the general limit.
func (c *Component) maxPrefixPhase(_ context.Context, s *state) error {
	general := s.policy.General
	for _, client := range s.clients {
		result := Client{
			ID:                      client.ID,
			ASN:                     client.ASN,
			IP:                      client.IP,
			Description:             client.Description,
			Bundles:                 s.bundles[client.ID],
			EnforceOriginInASSet:    client.EnforceOriginInASSet(general),
			EnforcePrefixInASSet:    client.EnforcePrefixInASSet(general),
			AttachCustomCommunities: client.Cfg.AttachCustomCommunities,
		}
		if result.Bundles == nil {
			result.Bundles = []string{}
		}
		for _, ip := range client.IP {
			if value, ok := s.rtts[ip]; ok {
				if result.RTT == nil {
					result.RTT = map[string]float64{}
				}
				result.RTT[ip.String()] = value
			}
		}
		if action := maxPrefixAction(general, client); action != "" {
			result.MaxPrefix.Action = action
			info, hasInfo := s.pdb[client.ASN]
			usePDB := hasInfo && client.UsePeeringDBMaxPrefix(general)
			for _, afi := range c.afis() {
				limit := clientLimit(client, afi)
				if limit == 0 && usePDB {
					pdbLimit := info.MaxPrefix4
					if afi == 6 {
						pdbLimit = info.MaxPrefix6
					}
					if pdbLimit > 0 {
						limit = general.Filtering.MaxPrefix.PeeringDBIncrement.Apply(pdbLimit)
					}
				}
				if limit == 0 {
					limit = general.Filtering.MaxPrefix.GeneralLimitIPv4
					if afi == 6 {
						limit = general.Filtering.MaxPrefix.GeneralLimitIPv6
					}
				}
				if afi == 4 {
					result.MaxPrefix.LimitIPv4 = limit
				} else {
					result.MaxPrefix.LimitIPv6 = limit
				}
			}
		}
		s.result.Clients = append(s.result.Clients, result)
	}
	return nil
}
