// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package whoisdump

import "time"

// Configuration describes the configuration for the whois dumps enricher.
type Configuration struct {
	// ARINSource is the URL or the path of the ARIN bulk whois dump
	// (JSON). It is decompressed when it ends with ".bz2".
	ARINSource string `validate:"required"`
	// RegistroBRSource is the URL or the path of the Registro.br whois
	// dump.
	RegistroBRSource string `validate:"required"`
	// Timeout is the maximum time to retrieve a dump.
	Timeout time.Duration `validate:"min=1s"`
	// Retries is the number of retries when the server answers with a
	// temporary error.
	Retries uint64
	// RetryInterval is the initial interval between two retries.
	RetryInterval time.Duration `validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for the whois dumps enricher.
func DefaultConfiguration() Configuration {
	return Configuration{
		ARINSource:       "http://irrexplorer.nlnog.net/static/dumps/arin-whois-originas.json.bz2",
		RegistroBRSource: "https://ftp.registro.br/pub/numeracao/origin/nicbr-asn-blk-latest.txt",
		Timeout:          5 * time.Minute,
		Retries:          2,
		RetryInterval:    10 * time.Second,
	}
}
