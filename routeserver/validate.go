// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"rsbuilder/common/helpers"
)

// Config is the whole route server policy.
type Config struct {
	General General
	Clients []Client       `validate:"dive"`
	ASNs    map[string]ASN `validate:"dive"`
}

// ParseASNKey parses a key of the "asns" section (AS<asn>).
func ParseASNKey(key string) (uint32, error) {
	if !strings.HasPrefix(key, "AS") {
		return 0, fmt.Errorf("invalid ASN format in 'asns' section for '%s': it must be in the 'AS<asn>' format", key)
	}
	asn, err := strconv.ParseUint(key[2:], 10, 32)
	if err != nil || asn == 0 {
		return 0, fmt.Errorf("invalid ASN format in 'asns' section for '%s': it must be in the 'AS<asn>' format", key)
	}
	return uint32(asn), nil
}

// ASSetsForASN returns the AS-SETs configured in the "asns" section for the
// provided ASN.
func (c Config) ASSetsForASN(asn uint32) []string {
	return c.ASNs[fmt.Sprintf("AS%d", asn)].ASSets
}

// Normalize assigns an ID to clients without one: AS<asn>_<n>, n being
// the rank of the client among those with the same ASN.
func (c *Config) Normalize() {
	counts := map[uint32]int{}
	for i := range c.Clients {
		counts[c.Clients[i].ASN]++
		if c.Clients[i].ID == "" {
			c.Clients[i].ID = fmt.Sprintf("AS%d_%d", c.Clients[i].ASN, counts[c.Clients[i].ASN])
		}
	}
}

func describeValidationErrors(where string, err error, problems *issues) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			problems.add("%s: invalid value %v for %s (%s)", where, verr.Value(), verr.Namespace(), verr.Tag())
		}
		return
	}
	problems.add("%s: %s", where, err)
}

// Validate checks the whole configuration: general settings, communities,
// clients and ASNs. All the issues are returned at once in a
// *ConfigurationError.
func (c Config) Validate() error {
	var problems issues

	if err := helpers.Validate.Struct(c.General); err != nil {
		describeValidationErrors("general", err, &problems)
	}
	var cerr *ConfigurationError
	if err := ValidateCommunities(c.General); errors.As(err, &cerr) {
		problems = append(problems, cerr.Issues...)
	}
	for i, rtt := range c.General.RTTThresholds {
		if i == 0 {
			continue
		}
		previous := c.General.RTTThresholds[i-1]
		if rtt == previous {
			problems.add("Duplicate RTT value found: %d", rtt)
		} else if rtt < previous {
			problems.add("RTT thresholds list items must be provided in ascending order: %d < %d", rtt, previous)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(c.ASNs)) {
		asn := c.ASNs[key]
		if _, err := ParseASNKey(key); err != nil {
			problems.add("%s", err)
		}
		if err := helpers.Validate.Struct(asn); err != nil {
			describeValidationErrors(fmt.Sprintf("asns %s", key), err, &problems)
		}
	}

	ips := map[netip.Addr]string{}
	ids := map[string]bool{}
	for _, client := range c.Clients {
		descr := client.ID
		if descr == "" {
			descr = fmt.Sprintf("AS%d", client.ASN)
		}
		if err := helpers.Validate.Struct(client); err != nil {
			describeValidationErrors(fmt.Sprintf("client %s", descr), err, &problems)
		}
		if client.ID != "" {
			if ids[client.ID] {
				problems.add("Duplicate client ID found: %s.", client.ID)
			}
			ids[client.ID] = true
		}
		for _, ip := range client.IP {
			if other, ok := ips[ip]; ok {
				problems.add("Duplicate IP address found: %s (clients %s and %s).", ip, other, descr)
				continue
			}
			ips[ip] = descr
		}
		for _, entry := range client.Cfg.Filtering.IRRDB.WhiteListPref {
			if err := entry.Check(); err != nil {
				problems.add("client %s: invalid white list entry: %s", descr, err)
			}
		}
		for _, name := range client.Cfg.AttachCustomCommunities {
			if _, ok := c.General.CustomCommunities[name]; !ok {
				problems.add("The custom BGP community %s referenced on client %s is not declared "+
					"on the general configuration.", name, descr)
			}
		}
	}
	return problems.err()
}
