// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peeringdb

import (
	"time"

	"rsbuilder/common/remotedatasource"
	"rsbuilder/enricher/pool"
)

// Configuration describes the configuration for the PeeringDB enricher.
type Configuration struct {
	// Source is the PeeringDB "net" endpoint. The ASN is added as a
	// query parameter. An API key can be provided with the
	// Authorization header.
	Source remotedatasource.Source
	// RateLimit is the maximum number of requests per second.
	RateLimit float64 `validate:"gt=0"`
	// RateBurst is the maximum number of requests in a burst.
	RateBurst int `validate:"min=1"`
	// BreakerErrors is the number of consecutive errors opening the
	// breaker. No request is made while the breaker is open.
	BreakerErrors int `validate:"min=1"`
	// BreakerTimeout is the time the breaker stays open.
	BreakerTimeout time.Duration `validate:"min=1s"`
	// Configuration of the worker pool querying PeeringDB (workers,
	// monitor interval).
	pool.Configuration `mapstructure:",squash" yaml:",inline"`
}

// DefaultConfiguration represents the default configuration for the PeeringDB enricher.
func DefaultConfiguration() Configuration {
	source := remotedatasource.DefaultSourceConfiguration()
	source.URL = "https://www.peeringdb.com/api/net"
	source.Timeout = 30 * time.Second
	source.Transform = remotedatasource.MustParseTransformQuery(
		".data[] | {asn, info_prefixes4, info_prefixes6, irr_as_set}")
	return Configuration{
		Source:         source,
		RateLimit:      1,
		RateBurst:      5,
		BreakerErrors:  5,
		BreakerTimeout: time.Minute,
		Configuration:  pool.DefaultConfiguration(),
	}
}
