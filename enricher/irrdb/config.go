// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package irrdb

import (
	"time"

	"rsbuilder/common/helpers"
	"rsbuilder/enricher/pool"
)

// Configuration describes the configuration for the IRR enricher.
type Configuration struct {
	// Path is the path to the bgpq4 (or bgpq3) binary.
	Path string `validate:"required"`
	// Hosts is the ordered list of IRR servers to query. When one of
	// them fails, the next one is used.
	Hosts []string `validate:"min=1,dive,required"`
	// Sources is the list of IRR sources to use.
	Sources []string `validate:"min=1,dive,required"`
	// Timeout is the maximum time a single bgpq4 run can take.
	Timeout time.Duration `validate:"min=1s"`
	// DeadHostsReset is the time after which a failed host is used
	// again. 0 means never.
	DeadHostsReset time.Duration `validate:"min=0"`
	// Configuration of the worker pools querying IRR (workers,
	// monitor interval).
	pool.Configuration `mapstructure:",squash" yaml:",inline"`
}

// DefaultConfiguration represents the default configuration for the IRR enricher.
func DefaultConfiguration() Configuration {
	return Configuration{
		Path:  "bgpq4",
		Hosts: []string{"rr.ntt.net", "whois.radb.net"},
		Sources: []string{
			"RIPE", "APNIC", "AFRINIC", "ARIN", "NTTCOM", "ALTDB", "BBOI",
			"BELL", "JPIRR", "LEVEL3", "RADB", "RGNET", "SAVVIS", "TC",
		},
		Timeout:       2 * time.Minute,
		Configuration: pool.DefaultConfiguration(),
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(helpers.RenameKeyUnmarshallerHook(Configuration{}, "Bgpq3Path", "Path"))
	helpers.RegisterMapstructureUnmarshallerHook(helpers.RenameKeyUnmarshallerHook(Configuration{}, "Host", "Hosts"))
	helpers.RegisterMapstructureUnmarshallerHook(helpers.RenameKeyUnmarshallerHook(Configuration{}, "Threads", "Workers"))
}
