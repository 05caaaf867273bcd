// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package whoisdump

import (
	"net/netip"
	"strings"
	"testing"

	"rsbuilder/common/helpers"
)

func TestParseARIN(t *testing.T) {
	cases := []struct {
		Description string
		Input       string
		Expected    Records
		Error       string
	}{
		{
			Description: "valid",
			Input: `{"json_schema": "0.1", "source": "ARIN-WHOIS", "whois_records": {
"v4": [{"originas": "AS64500", "prefix": "192.0.2.1/24"}]}}`,
			Expected: Records{64500: {netip.MustParsePrefix("192.0.2.0/24")}},
		}, {
			Description: "newer schema",
			Input:       `{"json_schema": "0.2", "source": "ARIN-WHOIS", "whois_records": {"v4": []}}`,
			Error:       "unsupported JSON schema version: 0.2",
		}, {
			Description: "missing schema",
			Input:       `{"source": "ARIN-WHOIS", "whois_records": {"v4": []}}`,
			Error:       "'json_schema' key is missing",
		}, {
			Description: "other source",
			Input:       `{"json_schema": "0.1", "source": "RIPE", "whois_records": {"v4": []}}`,
			Error:       "unsupported source: RIPE",
		}, {
			Description: "missing records",
			Input:       `{"json_schema": "0.1", "source": "ARIN-WHOIS"}`,
			Error:       "'whois_records' key is missing",
		}, {
			Description: "no family",
			Input:       `{"json_schema": "0.1", "source": "ARIN-WHOIS", "whois_records": {}}`,
			Error:       "'v4' and 'v6' lists missing",
		}, {
			Description: "not a list",
			Input:       `{"json_schema": "0.1", "source": "ARIN-WHOIS", "whois_records": {"v6": 1}}`,
			Error:       "'v6': a list was expected",
		}, {
			Description: "bad origin",
			Input: `{"json_schema": "0.1", "source": "ARIN-WHOIS", "whois_records": {
"v4": [{"originas": "64500", "prefix": "192.0.2.0/24"}]}}`,
			Error: "origin AS must start with 'AS'",
		}, {
			Description: "bad prefix",
			Input: `{"json_schema": "0.1", "source": "ARIN-WHOIS", "whois_records": {
"v4": [{"originas": "AS64500", "prefix": "192.0.2.0/33"}]}}`,
			Error: "invalid prefix: 192.0.2.0/33",
		}, {
			Description: "not JSON",
			Input:       `<html>`,
			Error:       "cannot parse JSON",
		},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			got, err := parseARIN([]byte(tc.Input))
			if tc.Error != "" {
				if err == nil || !strings.Contains(err.Error(), tc.Error) {
					t.Fatalf("parseARIN() error = %v, expected %q", err, tc.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseARIN() error:\n%+v", err)
			}
			if diff := helpers.Diff(got, tc.Expected); diff != "" {
				t.Fatalf("parseARIN() (-got, +want):\n%s", diff)
			}
		})
	}
}

func TestParseRegistroBR(t *testing.T) {
	cases := []struct {
		Description string
		Input       string
		Expected    Records
		Error       string
	}{
		{
			Description: "valid",
			Input: `AS64500|Example|00.000.000/0001-00|192.0.2.0/24|2001:db8::/32

AS64501|Other|00.000.000/0002-00|198.51.100.0/24
AS64502|Nothing|00.000.000/0003-00
`,
			Expected: Records{
				64500: {netip.MustParsePrefix("192.0.2.0/24"), netip.MustParsePrefix("2001:db8::/32")},
				64501: {netip.MustParsePrefix("198.51.100.0/24")},
			},
		}, {
			Description: "no separator",
			Input:       "AS64500 192.0.2.0/24\n",
			Error:       "missing field separator",
		}, {
			Description: "not enough fields",
			Input:       "AS64500|192.0.2.0/24\n",
			Error:       "less than 3 fields found",
		}, {
			Description: "bad origin",
			Input:       "ASX|Example|id|192.0.2.0/24\n",
			Error:       "origin AS must be in 'AS<n>' format",
		}, {
			Description: "bad prefix",
			Input:       "AS64500|Example|id|192.0.2.0\n",
			Error:       "invalid prefix: 192.0.2.0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			got, err := parseRegistroBR([]byte(tc.Input))
			if tc.Error != "" {
				if err == nil || !strings.Contains(err.Error(), tc.Error) {
					t.Fatalf("parseRegistroBR() error = %v, expected %q", err, tc.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRegistroBR() error:\n%+v", err)
			}
			if diff := helpers.Diff(got, tc.Expected); diff != "" {
				t.Fatalf("parseRegistroBR() (-got, +want):\n%s", diff)
			}
		})
	}
}
