// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package rpki retrieves ROAs from a JSON export. ROAs are used for
// origin validation and as route objects.
package rpki

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/cache"
	"rsbuilder/common/remotedatasource"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
	"rsbuilder/enricher/failover"
)

// ErrTooManyInvalidROAs is returned when the export contains too many
// invalid ROAs to be trusted.
var ErrTooManyInvalidROAs = errors.New("too many invalid ROAs")

// Component represents the RPKI enricher.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	fetcher  *remotedatasource.Fetcher[rawROA]
	failover *failover.Failover[[]rawROA]

	metrics struct {
		roas    *reporter.GaugeVec
		invalid reporter.Counter
	}
}

// Dependencies define the dependencies of the RPKI enricher.
type Dependencies struct {
	Cache     *cache.Component
	DeadHosts *failover.DeadHosts
	Clock     clock.Clock
}

// rawROA is a ROA as found in the export. Everything is a string as
// exports do not agree on types.
type rawROA struct {
	ASN       string `mapstructure:"asn" json:"asn"`
	Prefix    string `mapstructure:"prefix" json:"prefix"`
	MaxLength string `mapstructure:"maxLength" json:"maxLength"`
	TA        string `mapstructure:"ta" json:"ta"`
}

// Result is the set of ROAs retained.
type Result struct {
	// Table is used for origin validation.
	Table *ROATable
	// ByOrigin lists ROAs per origin ASN.
	ByOrigin map[uint32][]ROA
}

// New creates a new RPKI enricher.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Cache == nil {
		return nil, errors.New("rpki: a cache is required")
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if dependencies.DeadHosts == nil {
		dependencies.DeadHosts = failover.NewDeadHosts(dependencies.Clock, 0)
	}
	c := Component{
		r:       r,
		d:       &dependencies,
		config:  configuration,
		fetcher: remotedatasource.New[rawROA](r, "rpki"),
	}
	c.failover = failover.New[[]rawROA](r, "RPKI", failover.Configuration{
		Hosts:   configuration.URLs,
		Timeout: configuration.Timeout,
	}, dependencies.DeadHosts)
	c.metrics.roas = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "roas",
			Help: "Number of ROAs retained.",
		},
		[]string{"afi"})
	c.metrics.invalid = r.Counter(
		reporter.CounterOpts{
			Name: "invalid_roas_total",
			Help: "Number of invalid ROAs found.",
		})
	return &c, nil
}

func (c *Component) fetch(ctx context.Context) ([]rawROA, error) {
	return c.failover.Do(ctx, "ROAs", func(ctx context.Context, url string) ([]rawROA, error) {
		source := remotedatasource.DefaultSourceConfiguration()
		source.URL = url
		source.Timeout = c.config.Timeout
		source.Retries = 0
		source.Transform = remotedatasource.MustParseTransformQuery(".roas[]")
		roas, err := c.fetcher.Fetch(ctx, source, nil)
		if err != nil {
			return nil, fmt.Errorf("error while retrieving ROAs from %s: %w: %w",
				url, err, enricher.ErrTransient)
		}
		return roas, nil
	})
}

// Load retrieves ROAs and keeps those from allowed trust anchors. When
// origins is not nil, only ROAs for these origin ASNs are kept.
func (c *Component) Load(ctx context.Context, origins map[uint32]bool) (*Result, error) {
	raws, err := enricher.Cached(ctx, c.d.Cache, cache.Key(cache.CategoryRPKIROAs), c.fetch)
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for _, ta := range c.config.AllowedTrustAnchors {
		allowed[ta] = true
	}
	result := &Result{
		Table:    NewROATable(),
		ByOrigin: map[uint32][]ROA{},
	}
	invalid := 0
	count := map[string]int{"ipv4": 0, "ipv6": 0}
	for _, raw := range raws {
		roa, keep, err := parseROA(raw, allowed, origins)
		if err != nil {
			c.metrics.invalid.Inc()
			c.r.Warn().Msgf("Invalid ROA: %+v, %s", raw, err)
			invalid++
			if invalid > c.config.MaxInvalidROAs {
				c.r.Error().Msgf("More than %d invalid ROAs have been found. Aborting.",
					c.config.MaxInvalidROAs)
				return nil, fmt.Errorf("%w: more than %d", ErrTooManyInvalidROAs, c.config.MaxInvalidROAs)
			}
			continue
		}
		if !keep {
			continue
		}
		if slices.Contains(result.ByOrigin[roa.ASN], roa) {
			continue
		}
		result.ByOrigin[roa.ASN] = append(result.ByOrigin[roa.ASN], roa)
		result.Table.Add(roa)
		if roa.Prefix.Addr().Is4() {
			count["ipv4"]++
		} else {
			count["ipv6"]++
		}
	}
	for afi, n := range count {
		c.metrics.roas.WithLabelValues(afi).Set(float64(n))
	}
	c.r.Info().Int("roas", result.Table.Len()).Msg("RPKI ROAs loaded")
	return result, nil
}

// parseROA checks a ROA. It returns false when the ROA is valid but
// should not be kept.
func parseROA(raw rawROA, allowedTAs map[string]bool, origins map[uint32]bool) (ROA, bool, error) {
	if raw.TA == "" {
		return ROA{}, false, errors.New("missing trust anchor")
	}
	if !allowedTAs[raw.TA] {
		return ROA{}, false, nil
	}

	if raw.ASN == "" {
		return ROA{}, false, errors.New("missing ASN")
	}
	asnText := raw.ASN
	if len(asnText) > 2 && strings.EqualFold(asnText[:2], "AS") {
		asnText = asnText[2:]
	}
	asn, err := strconv.ParseUint(asnText, 10, 32)
	if err != nil {
		return ROA{}, false, fmt.Errorf("invalid ASN: %s", raw.ASN)
	}
	if origins != nil && !origins[uint32(asn)] {
		return ROA{}, false, nil
	}

	if raw.Prefix == "" {
		return ROA{}, false, errors.New("missing prefix")
	}
	prefix, err := netip.ParsePrefix(raw.Prefix)
	if err != nil {
		return ROA{}, false, fmt.Errorf("invalid prefix: %s", raw.Prefix)
	}
	prefix = prefix.Masked()

	if raw.MaxLength == "" {
		return ROA{}, false, errors.New("missing maxLength")
	}
	maxLength, err := strconv.Atoi(raw.MaxLength)
	if err != nil || maxLength < prefix.Bits() || maxLength > prefix.Addr().BitLen() {
		return ROA{}, false, fmt.Errorf("invalid maxLength: %s", raw.MaxLength)
	}

	return ROA{
		Prefix:    prefix,
		MaxLength: maxLength,
		ASN:       uint32(asn),
	}, true, nil
}
