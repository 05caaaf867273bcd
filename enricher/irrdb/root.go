// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package irrdb retrieves origin ASNs and prefixes from IRR databases for
// each bundle of AS-SETs. Queries are done with bgpq4.
package irrdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/cache"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
	"rsbuilder/enricher/bundle"
	"rsbuilder/enricher/failover"
	"rsbuilder/enricher/pool"
	"rsbuilder/routeserver"
)

// Component represents the IRR enricher.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	originASNs *failover.Failover[[]uint32]
	prefixes   *failover.Failover[[]routeserver.PrefixEntry]

	metrics struct {
		empty *reporter.CounterVec
	}
}

// Dependencies define the dependencies of the IRR enricher.
type Dependencies struct {
	Cache     *cache.Component
	DeadHosts *failover.DeadHosts
	Clock     clock.Clock
	Runner    enricher.Runner
}

// New creates a new IRR enricher.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Cache == nil {
		return nil, errors.New("irrdb: a cache is required")
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if dependencies.Runner == nil {
		dependencies.Runner = enricher.ExecRunner{}
	}
	if dependencies.DeadHosts == nil {
		dependencies.DeadHosts = failover.NewDeadHosts(dependencies.Clock, configuration.DeadHostsReset)
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: configuration,
	}
	hosts := failover.Configuration{
		Hosts:   configuration.Hosts,
		Timeout: configuration.Timeout,
	}
	c.originASNs = failover.New[[]uint32](r, "IRR", hosts, dependencies.DeadHosts)
	c.prefixes = failover.New[[]routeserver.PrefixEntry](r, "IRR", hosts, dependencies.DeadHosts)
	c.metrics.empty = r.CounterVec(
		reporter.CounterOpts{
			Name: "empty_results_total",
			Help: "Number of IRR queries returning nothing.",
		},
		[]string{"kind"})
	return &c, nil
}

func (c *Component) commonArgs(host string) []string {
	return []string{"-h", host, "-S", strings.Join(c.config.Sources, ","), "-3"}
}

// OriginASNs returns the origin ASNs authorized by the AS-SETs of the bundle.
func (c *Component) OriginASNs(ctx context.Context, b *bundle.Bundle) ([]uint32, error) {
	ref := cache.Key(cache.CategoryIRRASSet, b.ID)
	return enricher.Cached(ctx, c.d.Cache, ref, func(ctx context.Context) ([]uint32, error) {
		return c.originASNs.Do(ctx, b.Descr, func(ctx context.Context, host string) ([]uint32, error) {
			args := append(c.commonArgs(host), "-j", "-f", "1", "-l", "asn_list")
			args = append(args, b.Names...)
			out, err := c.run(ctx, args)
			if err != nil {
				return nil, err
			}
			var result struct {
				ASNList *[]uint32 `json:"asn_list"`
			}
			if err := json.Unmarshal(out, &result); err != nil || result.ASNList == nil {
				return nil, c.parseError(args, err)
			}
			return *result.ASNList, nil
		})
	})
}

// rawPrefix is a prefix as returned by bgpq4.
type rawPrefix struct {
	Prefix       netip.Prefix `json:"prefix"`
	Exact        bool         `json:"exact"`
	GreaterEqual *int         `json:"greater-equal"`
	LessEqual    *int         `json:"less-equal"`
}

// Prefixes returns the prefixes of the provided address family (4 or
// 6) authorized by the AS-SETs of the bundle.
func (c *Component) Prefixes(ctx context.Context, b *bundle.Bundle, afi int, allowLongerPrefixes bool) ([]routeserver.PrefixEntry, error) {
	ids := []string{b.ID, fmt.Sprintf("ipv%d", afi)}
	if allowLongerPrefixes {
		ids = append(ids, "longer")
	}
	ref := cache.Key(cache.CategoryIRRPrefixes, ids...)
	return enricher.Cached(ctx, c.d.Cache, ref, func(ctx context.Context) ([]routeserver.PrefixEntry, error) {
		label := fmt.Sprintf("IPv%d prefixes of %s", afi, b.Descr)
		return c.prefixes.Do(ctx, label, func(ctx context.Context, host string) ([]routeserver.PrefixEntry, error) {
			args := append(c.commonArgs(host), "-"+strconv.Itoa(afi), "-A", "-j", "-l", "prefix_list")
			if allowLongerPrefixes {
				if afi == 4 {
					args = append(args, "-R", "32")
				} else {
					args = append(args, "-R", "128")
				}
			}
			args = append(args, b.Names...)
			out, err := c.run(ctx, args)
			if err != nil {
				return nil, err
			}
			var result struct {
				PrefixList *[]rawPrefix `json:"prefix_list"`
			}
			if err := json.Unmarshal(out, &result); err != nil || result.PrefixList == nil {
				return nil, c.parseError(args, err)
			}
			prefixes := make([]routeserver.PrefixEntry, 0, len(*result.PrefixList))
			for _, raw := range *result.PrefixList {
				entry := routeserver.PrefixEntry{
					Prefix: raw.Prefix.Masked(),
					Exact:  raw.Exact,
				}
				if !raw.Exact {
					if raw.GreaterEqual != nil {
						entry.GE = *raw.GreaterEqual
					}
					if raw.LessEqual != nil {
						entry.LE = *raw.LessEqual
					}
				}
				if err := entry.Check(); err != nil {
					return nil, c.parseError(args, err)
				}
				prefixes = append(prefixes, entry)
			}
			return prefixes, nil
		})
	})
}

func (c *Component) parseError(args []string, err error) error {
	line := enricher.CommandLine(c.config.Path, args)
	if err == nil {
		err = errors.New("unexpected output")
	}
	c.r.Err(err).Str("command", line).
		Msgf("Error while parsing bgpq4 output for the following command: '%s'", line)
	return fmt.Errorf("cannot parse bgpq4 output: %w: %w", err, enricher.ErrTransient)
}

// Resolve fetches origin ASNs and then prefixes for every bundle of the
// registry requesting them. Prefixes are only fetched for the provided
// address families. Results are stored into the registry.
func (c *Component) Resolve(ctx context.Context, registry *bundle.Registry, afis []int, allowLongerPrefixes bool) error {
	deps := pool.Dependencies{Clock: c.d.Clock}
	asnPool, err := pool.New[*bundle.Bundle, []uint32](c.r, "irr-origin-asns", c.config.Configuration, deps,
		originASNsFetcher{c},
		func(b *bundle.Bundle, asns []uint32) { registry.SetASNs(b, asns) })
	if err != nil {
		return err
	}
	prefixPool, err := pool.New[*bundle.Bundle, prefixesResult](c.r, "irr-prefixes", c.config.Configuration, deps,
		prefixesFetcher{c, afis, allowLongerPrefixes},
		func(b *bundle.Bundle, result prefixesResult) {
			for afi, prefixes := range result {
				registry.SetPrefixes(b, afi, prefixes)
			}
		})
	if err != nil {
		return err
	}

	errASNs := asnPool.Run(ctx, registry.Fetchable(bundle.OriginASNs))
	if ctx.Err() != nil {
		return errASNs
	}
	errPrefixes := prefixPool.Run(ctx, registry.Fetchable(bundle.Prefixes))
	return errors.Join(errASNs, errPrefixes)
}

type originASNsFetcher struct {
	c *Component
}

func (f originASNsFetcher) Fetch(ctx context.Context, b *bundle.Bundle) ([]uint32, error) {
	asns, err := f.c.OriginASNs(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(asns) == 0 {
		f.c.metrics.empty.WithLabelValues(string(bundle.OriginASNs)).Inc()
		f.c.r.Warn().Str("bundle", b.Name).
			Msgf("No origin ASNs found in %s for %s", b.Descr, strings.Join(b.RequestedBy(), ", "))
	}
	return asns, nil
}

func (originASNsFetcher) Label(b *bundle.Bundle) string {
	return "origin ASNs of " + b.Descr
}

// prefixesResult maps an address family to its prefixes.
type prefixesResult map[int][]routeserver.PrefixEntry

type prefixesFetcher struct {
	c                   *Component
	afis                []int
	allowLongerPrefixes bool
}

func (f prefixesFetcher) Fetch(ctx context.Context, b *bundle.Bundle) (prefixesResult, error) {
	result := prefixesResult{}
	var errs []error
	for _, afi := range f.afis {
		prefixes, err := f.c.Prefixes(ctx, b, afi, f.allowLongerPrefixes)
		if err != nil {
			errs = append(errs, fmt.Errorf("IPv%d: %w", afi, err))
			continue
		}
		if len(prefixes) == 0 {
			f.c.metrics.empty.WithLabelValues(fmt.Sprintf("%s-ipv%d", bundle.Prefixes, afi)).Inc()
			f.c.r.Warn().Str("bundle", b.Name).
				Msgf("No IPv%d prefixes found in %s for %s", afi, b.Descr, strings.Join(b.RequestedBy(), ", "))
		}
		result[afi] = prefixes
	}
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (prefixesFetcher) Label(b *bundle.Bundle) string {
	return "prefixes of " + b.Descr
}
