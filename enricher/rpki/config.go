// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rpki

import "time"

// Configuration describes the configuration for the RPKI enricher.
type Configuration struct {
	// URLs is the ordered list of URLs exporting ROAs in JSON. When one
	// of them fails, the next one is used.
	URLs []string `validate:"min=1,dive,url"`
	// Timeout is the maximum time to retrieve ROAs from one URL.
	Timeout time.Duration `validate:"min=1s"`
	// AllowedTrustAnchors is the list of trust anchors to accept.
	AllowedTrustAnchors []string `validate:"min=1"`
	// MaxInvalidROAs is the number of invalid ROAs tolerated.
	MaxInvalidROAs int `validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for the RPKI enricher.
func DefaultConfiguration() Configuration {
	return Configuration{
		URLs: []string{
			"https://rpki.gin.ntt.net/api/export.json",
			"https://console.rpki-client.org/vrps.json",
		},
		Timeout: 2 * time.Minute,
		AllowedTrustAnchors: []string{
			"APNIC RPKI Root",
			"AfriNIC RPKI Root",
			"LACNIC RPKI Root",
			"RIPE NCC RPKI Root",
			"apnic",
			"afrinic",
			"lacnic",
			"ripe",
		},
		MaxInvalidROAs: 10,
	}
}
