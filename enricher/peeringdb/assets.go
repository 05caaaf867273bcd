// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package peeringdb

import (
	"regexp"
	"slices"
	"strings"
)

var (
	asSetSeparators  = regexp.MustCompile(`[/,&\s]`)
	registryPrefix   = regexp.MustCompile(`(?i)^(?:RIPE|APNIC|AFRINIC|ARIN|NTTCOM|ALTDB|BBOI|BELL|JPIRR|LEVEL3|RADB|RGNET|SAVVIS|TC):[:\s]`)
	addressFamily    = regexp.MustCompile(`(?i)^(?:ipv4|ipv6):`)
	rpslSetComponent = regexp.MustCompile(`^(?:AS\d+|AS-[A-Z0-9_\-]*[A-Z0-9])$`)
)

// ParseASSets extracts AS-SET names from the free-form irr_as_set field
// of PeeringDB. Invalid names are skipped.
func (c *Component) ParseASSets(asn uint32, raw string) []string {
	result := []string{}
	for _, candidate := range asSetSeparators.Split(raw, -1) {
		name, guessed, reason := parseASSet(candidate)
		if reason != "" {
			c.r.Debug().Uint32("asn", asn).
				Msgf("AS-SET from PeeringDB for AS%d: ignoring %s, %s", asn, candidate, reason)
			continue
		}
		if name == "" || slices.Contains(result, name) {
			continue
		}
		if guessed {
			c.r.Info().Uint32("asn", asn).
				Msgf("AS-SET from PeeringDB for AS%d: guessed %s from %s", asn, name, candidate)
		}
		result = append(result, name)
	}
	return result
}

// parseASSet normalizes a single AS-SET name. It returns an empty name
// when there is nothing to parse and a reason when the name is invalid.
// The name is guessed when a registry or an address family prefix was
// removed.
func parseASSet(value string) (name string, guessed bool, reason string) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false, ""
	}
	for _, prefix := range []*regexp.Regexp{registryPrefix, addressFamily} {
		if loc := prefix.FindStringIndex(v); loc != nil {
			v = strings.TrimSpace(v[loc[1]:])
			guessed = true
		}
		if v == "" {
			return "", false, ""
		}
	}

	// A hierarchical set name needs at least one component being a set
	// name (RFC 2622, section 5).
	dashFound := false
	parts := strings.Split(v, ":")
	for i, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if !rpslSetComponent.MatchString(part) {
			return "", false, "invalid name " + part
		}
		if strings.HasPrefix(part, "AS-") {
			dashFound = true
		}
		parts[i] = part
	}
	v = strings.Join(parts, ":")
	if !dashFound {
		return "", false, `no "AS-" found`
	}
	return v, guessed, ""
}
