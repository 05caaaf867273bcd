// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peeringdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/eapache/go-resiliency/breaker"

	"rsbuilder/common/cache"
	"rsbuilder/common/remotedatasource"
	"rsbuilder/enricher"
)

// NeverViaRouteServers returns the ASNs of the networks flagged on
// PeeringDB with "info_never_via_route_servers". When no network is
// flagged, an empty list is returned. The list is cached.
func (c *Component) NeverViaRouteServers(ctx context.Context) ([]uint32, error) {
	c.r.Info().Msg("Retrieving 'never via route-servers' networks from PeeringDB...")
	ref := cache.Key(cache.CategoryPeeringDB, "never-via-route-servers")
	result, err, _ := c.group.Do(ref.Key, func() (any, error) {
		return enricher.Cached(ctx, c.d.Cache, ref, c.fetchNeverViaRouteServers)
	})
	if errors.Is(err, enricher.ErrNotFound) {
		c.metrics.lookups.WithLabelValues("not-found").Inc()
		c.r.Warn().Msg("No networks found on PeeringDB with 'info_never_via_route_servers' attribute set.")
		return []uint32{}, nil
	}
	if err != nil {
		c.metrics.lookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("an error occurred while retrieving 'never via route-servers' networks from PeeringDB: %w", err)
	}
	c.metrics.lookups.WithLabelValues("found").Inc()
	asns := result.([]uint32)
	c.r.Info().Msgf("%d 'never via route-servers' networks found on PeeringDB", len(asns))
	return asns, nil
}

func (c *Component) fetchNeverViaRouteServers(ctx context.Context) ([]uint32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var nets []network
	var notFound bool
	err := c.breaker.Run(func() error {
		var err error
		nets, err = c.fetcher.Fetch(ctx, c.config.Source, url.Values{
			"info_never_via_route_servers": []string{"1"},
		})
		if errors.Is(err, remotedatasource.ErrNotFound) || errors.Is(err, remotedatasource.ErrEmpty) {
			notFound = true
			return nil
		}
		return err
	})
	if errors.Is(err, breaker.ErrBreakerOpen) {
		c.metrics.breakerOpens.Inc()
		return nil, fmt.Errorf("PeeringDB breaker open: %w", enricher.ErrTransient)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, enricher.ErrTransient)
	}
	if notFound {
		return nil, enricher.ErrNotFound
	}
	asns := make([]uint32, 0, len(nets))
	for _, net := range nets {
		if net.ASN != 0 {
			asns = append(asns, net.ASN)
		}
	}
	slices.Sort(asns)
	return slices.Compact(asns), nil
}
