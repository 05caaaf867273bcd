// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package irrdb

import (
	"testing"
	"time"

	"rsbuilder/common/helpers"
)

func TestConfigurationDecode(t *testing.T) {
	helpers.TestConfigurationDecode(t, helpers.ConfigurationDecodeCases{
		{
			Description:   "default",
			Initial:       func() any { return DefaultConfiguration() },
			Configuration: func() any { return map[string]any{} },
			Expected:      DefaultConfiguration(),
		}, {
			Description: "deprecated keys",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return map[string]any{
					"bgpq3-path": "/usr/bin/bgpq3",
					"host":       "whois.radb.net",
					"sources":    "RADB,RIPE",
					"threads":    8,
				}
			},
			Expected: func() Configuration {
				c := DefaultConfiguration()
				c.Path = "/usr/bin/bgpq3"
				c.Hosts = []string{"whois.radb.net"}
				c.Sources = []string{"RADB", "RIPE"}
				c.Workers = 8
				return c
			}(),
		}, {
			Description: "new keys",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return map[string]any{
					"path":             "/usr/local/bin/bgpq4",
					"hosts":            []string{"rr.ntt.net", "whois.radb.net", "rr.level3.net"},
					"timeout":          "30s",
					"dead-hosts-reset": "1h",
					"workers":          2,
				}
			},
			Expected: func() Configuration {
				c := DefaultConfiguration()
				c.Path = "/usr/local/bin/bgpq4"
				c.Hosts = []string{"rr.ntt.net", "whois.radb.net", "rr.level3.net"}
				c.Timeout = 30 * time.Second
				c.DeadHostsReset = time.Hour
				c.Workers = 2
				return c
			}(),
		}, {
			Description: "both old and new path",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return map[string]any{
					"bgpq3-path": "/usr/bin/bgpq3",
					"path":       "/usr/bin/bgpq4",
				}
			},
			Error: true,
		}, {
			Description: "no hosts",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return map[string]any{
					"hosts": []string{},
				}
			},
			Error: true,
		},
	})
}
