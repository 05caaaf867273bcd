// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"time"
)

// Configuration describes the configuration for the cache component.
type Configuration struct {
	// Directory is where cached entries are stored.
	Directory string `validate:"required"`
	// Backend is the storage backend to use: "files" stores one JSON
	// document per entry, "leveldb" stores them in a LevelDB database.
	Backend string `validate:"oneof=files leveldb"`
	// Expiry maps a category to the time an entry is considered
	// fresh. The "default" category applies to unlisted categories.
	Expiry map[string]time.Duration `validate:"dive,min=0"`
}

// Known categories.
const (
	CategoryDefault        = "default"
	CategoryPeeringDB      = "peeringdb"
	CategoryIRRASSet       = "irr-as-set"
	CategoryIRRPrefixes    = "irr-prefixes"
	CategoryRPKIROAs       = "rpki-roas"
	CategoryARINWhoisDump  = "arin-whois-db-dump"
	CategoryRegistroBRDump = "registrobr-whois-db-dump"
	CategoryLastVersion    = "last-version"
)

// DefaultConfiguration represents the default configuration for the cache component.
func DefaultConfiguration() Configuration {
	return Configuration{
		Directory: "cache",
		Backend:   "files",
		Expiry: map[string]time.Duration{
			CategoryDefault:        12 * time.Hour,
			CategoryPeeringDB:      24 * time.Hour,
			CategoryIRRASSet:       12 * time.Hour,
			CategoryIRRPrefixes:    12 * time.Hour,
			CategoryRPKIROAs:       12 * time.Hour,
			CategoryARINWhoisDump:  12 * time.Hour,
			CategoryRegistroBRDump: 12 * time.Hour,
			CategoryLastVersion:    24 * time.Hour,
		},
	}
}
