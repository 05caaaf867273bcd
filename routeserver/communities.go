// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routeserver

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// Class is the kind of a BGP community.
type Class int

const (
	// Outbound communities are attached by the route server to routes.
	Outbound Class = iota
	// Inbound communities are set by clients to ask for an action.
	Inbound
	// Internal communities are used by the route server itself and
	// removed before announcing routes.
	Internal
	// Custom communities are defined by the operator and attached to
	// routes of some clients.
	Custom
)

// String returns the name of the class.
func (c Class) String() string {
	switch c {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	case Internal:
		return "internal"
	case Custom:
		return "custom"
	}
	return "unknown"
}

// Format is the encoding of a BGP community.
type Format string

const (
	// Standard is a RFC 1997 community (x:x).
	Standard Format = "std"
	// Large is a RFC 8092 community (x:x:x).
	Large Format = "lrg"
	// Extended is a RFC 4360 community (rt|ro:x:x).
	Extended Format = "ext"
)

var formats = []Format{Standard, Large, Extended}

// Macros recognized in community values. rs_as is replaced by the ASN of
// the route server while parsing. The other ones are kept as is.
const (
	macroRSAS   = "rs_as"
	macroPeerAS = "peer_as"
	macroDynVal = "dyn_val"
)

type communitySchema struct {
	class  Class
	peerAS bool
	dynVal bool
	// wellKnown is a standard value accepted despite being in the
	// reserved range.
	wellKnown string
}

var communitiesSchema = map[string]communitySchema{
	"origin_present_in_as_set":     {class: Outbound},
	"origin_not_present_in_as_set": {class: Outbound},
	"prefix_present_in_as_set":     {class: Outbound},
	"prefix_not_present_in_as_set": {class: Outbound},
	"roa_valid":                    {class: Outbound},
	"roa_invalid":                  {class: Outbound},
	"roa_unknown":                  {class: Outbound},

	"blackholing":             {class: Inbound, wellKnown: "65535:666"},
	"do_not_announce_to_any":  {class: Inbound},
	"do_not_announce_to_peer": {class: Inbound, peerAS: true},
	"announce_to_peer":        {class: Inbound, peerAS: true},
	"prepend_once_to_any":     {class: Inbound},
	"prepend_twice_to_any":    {class: Inbound},
	"prepend_thrice_to_any":   {class: Inbound},
	"prepend_once_to_peer":    {class: Inbound, peerAS: true},
	"prepend_twice_to_peer":   {class: Inbound, peerAS: true},
	"prepend_thrice_to_peer":  {class: Inbound, peerAS: true},

	"reject_cause":                {class: Internal, dynVal: true},
	"rejected_route_announced_by": {class: Internal, peerAS: true},
}

// CommunityTags returns the known community tags of the provided class,
// sorted.
func CommunityTags(class Class) []string {
	tags := []string{}
	for tag, schema := range communitiesSchema {
		if schema.class == class {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// ResolvedCommunity is a community whose values have been validated and
// normalized. Only the peer_as and dyn_val macros remain.
type ResolvedCommunity struct {
	Tag    string
	Class  Class
	Values map[Format]string
}

var errCommunityValue = errors.New("invalid community value")

type macroPolicy struct {
	peerAS bool
	dynVal bool
}

// splitCommunity splits a value into its parts and checks how macros are
// used: a required macro must be present, only in the last part.
func splitCommunity(value string, expected int, policy macroPolicy) ([]string, error) {
	parts := strings.Split(value, ":")
	if len(parts) != expected {
		return nil, errCommunityValue
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for _, macro := range []struct {
		name   string
		needed bool
	}{{macroPeerAS, policy.peerAS}, {macroDynVal, policy.dynVal}} {
		found := false
		for idx, part := range parts {
			if part != macro.name {
				continue
			}
			if !macro.needed {
				return nil, fmt.Errorf("%q macro not allowed", macro.name)
			}
			if idx != len(parts)-1 {
				return nil, fmt.Errorf("%q macro can be used only in the last part of the value", macro.name)
			}
			found = true
		}
		if macro.needed && !found {
			return nil, fmt.Errorf("%q macro is mandatory in this community", macro.name)
		}
	}
	return parts, nil
}

func isMacro(part string) bool {
	return part == macroPeerAS || part == macroDynVal
}

// normalizeParts checks each numeric part is below limit and returns the
// normalized value. It also tells if the value contains no macro.
func normalizeParts(parts []string, limit uint64) (string, bool, error) {
	concrete := true
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		if isMacro(part) {
			concrete = false
			normalized = append(normalized, part)
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil || v > limit {
			return "", false, errCommunityValue
		}
		normalized = append(normalized, strconv.FormatUint(v, 10))
	}
	return strings.Join(normalized, ":"), concrete, nil
}

func expandRSAS(value string, rsAS uint32) string {
	return strings.ReplaceAll(value, macroRSAS, strconv.FormatUint(uint64(rsAS), 10))
}

// parseStandardCommunity validates and normalizes a standard community.
func parseStandardCommunity(value string, rsAS uint32, policy macroPolicy, wellKnown string) (string, error) {
	wrap := func(err error) error {
		reason := ""
		if err != nil && !errors.Is(err, errCommunityValue) {
			reason = fmt.Sprintf(" - %s", err)
		}
		return fmt.Errorf("invalid BGP standard community: %s%s; it must be in the x:x format, "+
			"with x = a 16-bit unsigned integer; the 'rs_as' macro can be used to represent "+
			"the route server's ASN provided that it is a 16-bit ASN", value, reason)
	}
	parts, err := splitCommunity(expandRSAS(value, rsAS), 2, policy)
	if err != nil {
		return "", wrap(err)
	}
	normalized, _, err := normalizeParts(parts, 65535)
	if err != nil {
		return "", wrap(err)
	}
	if strings.HasPrefix(normalized, "65535:") && normalized != wellKnown {
		return "", wrap(errors.New("range 65535:x is reserved"))
	}
	return normalized, nil
}

// parseLargeCommunity validates and normalizes a large community.
func parseLargeCommunity(value string, rsAS uint32, policy macroPolicy) (string, error) {
	wrap := func(err error) error {
		reason := ""
		if err != nil && !errors.Is(err, errCommunityValue) {
			reason = fmt.Sprintf(" - %s", err)
		}
		return fmt.Errorf("invalid BGP large community: %s%s; it must be in the x:x:x format, "+
			"with x = a 32-bit unsigned integer; the 'rs_as' and 'peer_as' macros can be used "+
			"to represent, respectively, the route server's ASN and the destination peer's ASN",
			value, reason)
	}
	parts, err := splitCommunity(expandRSAS(value, rsAS), 3, policy)
	if err != nil {
		return "", wrap(err)
	}
	normalized, concrete, err := normalizeParts(parts, 4294967295)
	if err != nil {
		return "", wrap(err)
	}
	if concrete {
		if _, err := bgp.ParseLargeCommunity(normalized); err != nil {
			return "", wrap(err)
		}
	}
	return normalized, nil
}

// parseExtendedCommunity validates and normalizes an extended community.
func parseExtendedCommunity(value string, rsAS uint32, policy macroPolicy) (string, error) {
	wrap := func(err error) error {
		reason := ""
		if err != nil && !errors.Is(err, errCommunityValue) {
			reason = fmt.Sprintf(" - %s", err)
		}
		return fmt.Errorf("invalid BGP extended community: %s%s; it must be in the k:x:x format, "+
			"with k one of 'rt' or 'ro' and x = an unsigned integer; the 'rs_as' and 'peer_as' "+
			"macros can be used to represent, respectively, the route server's ASN and the "+
			"destination peer's ASN", value, reason)
	}
	parts, err := splitCommunity(expandRSAS(value, rsAS), 3, policy)
	if err != nil {
		return "", wrap(err)
	}
	var subtype bgp.ExtendedCommunityAttrSubType
	switch strings.ToLower(parts[0]) {
	case "rt":
		subtype = bgp.EC_SUBTYPE_ROUTE_TARGET
	case "ro":
		subtype = bgp.EC_SUBTYPE_ROUTE_ORIGIN
	default:
		return "", wrap(errCommunityValue)
	}
	normalized, concrete, err := normalizeParts(parts[1:], 4294967295)
	if err != nil {
		return "", wrap(err)
	}
	if concrete {
		if _, err := encodeExtendedCommunity(subtype, parts[1], parts[2]); err != nil {
			return "", wrap(err)
		}
	}
	return fmt.Sprintf("%s:%s", strings.ToLower(parts[0]), normalized), nil
}

// encodeExtendedCommunity encodes an AS-specific extended community. A
// 4-byte ASN leaves only 16 bits for the local administrator.
func encodeExtendedCommunity(subtype bgp.ExtendedCommunityAttrSubType, global, local string) ([]byte, error) {
	asn, err := strconv.ParseUint(global, 10, 32)
	if err != nil {
		return nil, errCommunityValue
	}
	admin, err := strconv.ParseUint(local, 10, 32)
	if err != nil {
		return nil, errCommunityValue
	}
	var ec bgp.ExtendedCommunityInterface
	if asn <= 65535 {
		ec = bgp.NewTwoOctetAsSpecificExtended(subtype, uint16(asn), uint32(admin), true)
	} else {
		if admin > 65535 {
			return nil, fmt.Errorf("local administrator %d too large with a 4-byte ASN", admin)
		}
		ec = bgp.NewFourOctetAsSpecificExtended(subtype, uint32(asn), uint16(admin), true)
	}
	return ec.Serialize()
}

// resolveCommunity validates each value of a community.
func resolveCommunity(tag string, schema communitySchema, community Community, rsAS uint32) (ResolvedCommunity, []string) {
	policy := macroPolicy{peerAS: schema.peerAS, dynVal: schema.dynVal}
	resolved := ResolvedCommunity{
		Tag:    tag,
		Class:  schema.class,
		Values: map[Format]string{},
	}
	var problems []string
	for _, format := range formats {
		var (
			value string
			err   error
		)
		switch format {
		case Standard:
			if community.Std == "" {
				continue
			}
			value, err = parseStandardCommunity(community.Std, rsAS, policy, schema.wellKnown)
		case Large:
			if community.Lrg == "" {
				continue
			}
			value, err = parseLargeCommunity(community.Lrg, rsAS, policy)
		case Extended:
			if community.Ext == "" {
				continue
			}
			value, err = parseExtendedCommunity(community.Ext, rsAS, policy)
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s.%s: %s", tag, format, err))
			continue
		}
		resolved.Values[format] = value
	}
	return resolved, problems
}

// ResolveCommunities validates the communities of the general
// configuration. It returns the resolved communities, the well-known ones
// first, sorted by tag, then the custom ones, sorted by tag.
func ResolveCommunities(g General) ([]ResolvedCommunity, error) {
	var problems issues
	result := []ResolvedCommunity{}

	tags := make([]string, 0, len(g.Communities))
	for tag := range g.Communities {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		schema, ok := communitiesSchema[tag]
		if !ok {
			problems.add("Unknown community '%s'.", tag)
			continue
		}
		resolved, p := resolveCommunity(tag, schema, g.Communities[tag], g.RSAS)
		problems = append(problems, p...)
		result = append(result, resolved)
	}

	tags = tags[:0]
	for tag := range g.CustomCommunities {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if _, ok := communitiesSchema[tag]; ok {
			problems.add("The custom community '%s' has the same name of a well-known community.", tag)
			continue
		}
		resolved, p := resolveCommunity(tag, communitySchema{class: Custom}, g.CustomCommunities[tag], g.RSAS)
		problems = append(problems, p...)
		result = append(result, resolved)
	}
	return result, problems.err()
}
