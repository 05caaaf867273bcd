// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rtt

import (
	"time"

	"rsbuilder/enricher/pool"
)

// Configuration describes the configuration for the RTT enricher.
type Configuration struct {
	// Path is the program returning the RTT of a client. It is invoked
	// with the IP address, the ASN and the ID of the client. When
	// empty, RTTs are not retrieved.
	Path string
	// Timeout is the maximum time a single run can take.
	Timeout time.Duration `validate:"min=1s"`
	// Configuration of the worker pool (workers, monitor interval).
	pool.Configuration `mapstructure:",squash" yaml:",inline"`
}

// DefaultConfiguration represents the default configuration for the RTT enricher.
func DefaultConfiguration() Configuration {
	return Configuration{
		Timeout:       10 * time.Second,
		Configuration: pool.DefaultConfiguration(),
	}
}
