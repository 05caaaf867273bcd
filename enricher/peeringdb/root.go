// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package peeringdb retrieves max-prefix limits and AS-SETs of networks
// from PeeringDB.
package peeringdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eapache/go-resiliency/breaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"rsbuilder/common/cache"
	"rsbuilder/common/remotedatasource"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
	"rsbuilder/enricher/pool"
)

// Component represents the PeeringDB enricher.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	fetcher *remotedatasource.Fetcher[network]
	limiter *rate.Limiter
	breaker *breaker.Breaker
	group   singleflight.Group

	breakerLogger reporter.Logger

	metrics struct {
		lookups      *reporter.CounterVec
		breakerOpens reporter.Counter
	}
}

// Dependencies define the dependencies of the PeeringDB enricher.
type Dependencies struct {
	Cache *cache.Component
	Clock clock.Clock
}

// network is a PeeringDB "net" object.
type network struct {
	ASN           uint32 `mapstructure:"asn"`
	InfoPrefixes4 uint   `mapstructure:"info_prefixes4"`
	InfoPrefixes6 uint   `mapstructure:"info_prefixes6"`
	IRRASSet      string `mapstructure:"irr_as_set"`
}

// Info is what we know about a network from PeeringDB.
type Info struct {
	ASN        uint32   `json:"asn"`
	MaxPrefix4 uint     `json:"info_prefixes4"`
	MaxPrefix6 uint     `json:"info_prefixes6"`
	ASSets     []string `json:"irr_as_sets"`
}

// New creates a new PeeringDB enricher.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Cache == nil {
		return nil, errors.New("peeringdb: a cache is required")
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:       r,
		d:       &dependencies,
		config:  configuration,
		fetcher: remotedatasource.New[network](r, "peeringdb"),
		limiter: rate.NewLimiter(rate.Limit(configuration.RateLimit), configuration.RateBurst),
		breaker: breaker.New(configuration.BreakerErrors, 1, configuration.BreakerTimeout),

		breakerLogger: r.Sample(reporter.BurstSampler(time.Minute, 1)),
	}
	c.metrics.lookups = r.CounterVec(
		reporter.CounterOpts{
			Name: "lookups_total",
			Help: "Number of PeeringDB lookups.",
		},
		[]string{"result"})
	c.metrics.breakerOpens = r.Counter(
		reporter.CounterOpts{
			Name: "breaker_open_total",
			Help: "Number of requests not done because the breaker was open.",
		})
	return &c, nil
}

// Lookup returns the information about the provided ASN. When PeeringDB
// has no such network, enricher.ErrNotFound is returned. Results are
// cached, including the absence of a network.
func (c *Component) Lookup(ctx context.Context, asn uint32) (Info, error) {
	key := strconv.FormatUint(uint64(asn), 10)
	result, err, _ := c.group.Do(key, func() (any, error) {
		ref := cache.Key(cache.CategoryPeeringDB, "net", key)
		return enricher.Cached(ctx, c.d.Cache, ref, func(ctx context.Context) (Info, error) {
			return c.fetch(ctx, asn)
		})
	})
	switch {
	case err == nil:
		c.metrics.lookups.WithLabelValues("found").Inc()
	case errors.Is(err, enricher.ErrNotFound):
		c.metrics.lookups.WithLabelValues("not-found").Inc()
	default:
		c.metrics.lookups.WithLabelValues("error").Inc()
	}
	info, _ := result.(Info)
	return info, err
}

func (c *Component) fetch(ctx context.Context, asn uint32) (Info, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Info{}, err
	}
	var nets []network
	var notFound bool
	err := c.breaker.Run(func() error {
		var err error
		nets, err = c.fetcher.Fetch(ctx, c.config.Source, url.Values{
			"asn": []string{strconv.FormatUint(uint64(asn), 10)},
		})
		if errors.Is(err, remotedatasource.ErrNotFound) || errors.Is(err, remotedatasource.ErrEmpty) {
			// Not an error of PeeringDB
			notFound = true
			return nil
		}
		return err
	})
	if errors.Is(err, breaker.ErrBreakerOpen) {
		c.metrics.breakerOpens.Inc()
		c.breakerLogger.Warn().Msg("PeeringDB breaker open")
		return Info{}, fmt.Errorf("PeeringDB breaker open: %w", enricher.ErrTransient)
	}
	if err != nil {
		return Info{}, fmt.Errorf("error while retrieving info from PeeringDB for AS%d: %w: %w",
			asn, err, enricher.ErrTransient)
	}
	if notFound {
		return Info{}, fmt.Errorf("AS%d: %w", asn, enricher.ErrNotFound)
	}
	net := nets[0]
	return Info{
		ASN:        asn,
		MaxPrefix4: net.InfoPrefixes4,
		MaxPrefix6: net.InfoPrefixes6,
		ASSets:     c.ParseASSets(asn, net.IRRASSet),
	}, nil
}

// Resolve looks up all the provided ASNs using a worker pool. Networks
// unknown to PeeringDB are absent from the result.
func (c *Component) Resolve(ctx context.Context, asns []uint32) (map[uint32]Info, error) {
	results := map[uint32]Info{}
	p, err := pool.New[uint32, Info](c.r, "peeringdb", c.config.Configuration,
		pool.Dependencies{Clock: c.d.Clock},
		lookupFetcher{c},
		func(asn uint32, info Info) {
			if info.ASN != 0 {
				results[asn] = info
			}
		})
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, asns); err != nil {
		return nil, err
	}
	return results, nil
}

type lookupFetcher struct {
	c *Component
}

func (f lookupFetcher) Fetch(ctx context.Context, asn uint32) (Info, error) {
	info, err := f.c.Lookup(ctx, asn)
	if errors.Is(err, enricher.ErrNotFound) {
		f.c.r.Debug().Uint32("asn", asn).Msgf("No data found on PeeringDB for AS%d", asn)
		return Info{}, nil
	}
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

func (lookupFetcher) Label(asn uint32) string {
	return fmt.Sprintf("PeeringDB info for AS%d", asn)
}
