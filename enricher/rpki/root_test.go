// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rpki

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/cache"
	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher/failover"
)

const export = `{
  "metadata": {"counts": 7},
  "roas": [
    {"asn": "AS65501", "prefix": "192.0.2.0/24", "maxLength": 24, "ta": "ripe"},
    {"asn": 65501, "prefix": "2001:db8::/32", "maxLength": 48, "ta": "RIPE NCC RPKI Root"},
    {"asn": "AS65501", "prefix": "192.0.2.0/24", "maxLength": 24, "ta": "ripe"},
    {"asn": "AS65502", "prefix": "198.51.100.0/22", "maxLength": "24", "ta": "apnic"},
    {"asn": "AS65503", "prefix": "203.0.113.0/24", "maxLength": 24, "ta": "arin"},
    {"asn": "AS65504", "prefix": "203.0.113.0/24", "maxLength": 16, "ta": "ripe"},
    {"asn": "AS65505", "prefix": "203.0.113.0/24", "maxLength": 24}
  ]
}`

func newServers(t *testing.T, payload string) (string, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(broken.Close)
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	t.Cleanup(working.Close)
	return fmt.Sprintf("%s/export.json,%s/export.json", broken.URL, working.URL), &requests
}

func newComponent(t *testing.T, r *reporter.Reporter, urls string) *Component {
	t.Helper()
	config := DefaultConfiguration()
	config.URLs = strings.Split(urls, ",")
	config.Timeout = time.Second
	c, err := New(r, config, Dependencies{
		Cache:     cache.NewMock(t, r, clock.NewMock()),
		DeadHosts: failover.NewDeadHosts(clock.NewMock(), 0),
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	return c
}

func TestLoad(t *testing.T) {
	r := reporter.NewMock(t)
	urls, requests := newServers(t, export)
	c := newComponent(t, r, urls)

	for range 2 {
		got, err := c.Load(context.Background(), nil)
		if err != nil {
			t.Fatalf("Load() error:\n%+v", err)
		}
		expected := map[uint32][]ROA{
			65501: {
				{Prefix: netip.MustParsePrefix("192.0.2.0/24"), MaxLength: 24, ASN: 65501},
				{Prefix: netip.MustParsePrefix("2001:db8::/32"), MaxLength: 48, ASN: 65501},
			},
			65502: {
				{Prefix: netip.MustParsePrefix("198.51.100.0/22"), MaxLength: 24, ASN: 65502},
			},
		}
		if diff := helpers.Diff(got.ByOrigin, expected); diff != "" {
			t.Fatalf("Load() (-got, +want):\n%s", diff)
		}
		if got.Table.Validate(netip.MustParsePrefix("198.51.101.0/24"), 65502) != Valid {
			t.Error("Validate() should be valid")
		}
	}
	// The second load is from the cache
	if requests.Load() != 1 {
		t.Errorf("Load() did %d requests, expected 1", requests.Load())
	}

	gotMetrics := r.GetMetrics("rsbuilder_enricher_rpki_")
	expectedMetrics := map[string]string{
		`roas{afi="ipv4"}`:   "2",
		`roas{afi="ipv6"}`:   "1",
		`invalid_roas_total`: "4",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestLoadOrigins(t *testing.T) {
	r := reporter.NewMock(t)
	urls, _ := newServers(t, export)
	c := newComponent(t, r, urls)

	got, err := c.Load(context.Background(), map[uint32]bool{65502: true})
	if err != nil {
		t.Fatalf("Load() error:\n%+v", err)
	}
	expected := map[uint32][]ROA{
		65502: {
			{Prefix: netip.MustParsePrefix("198.51.100.0/22"), MaxLength: 24, ASN: 65502},
		},
	}
	if diff := helpers.Diff(got.ByOrigin, expected); diff != "" {
		t.Fatalf("Load() (-got, +want):\n%s", diff)
	}
}

func TestLoadTooManyInvalid(t *testing.T) {
	r := reporter.NewMock(t)
	roas := []string{}
	for i := range 11 {
		roas = append(roas, fmt.Sprintf(`{"asn": "AS6550%d", "prefix": "not a prefix", "maxLength": 24, "ta": "ripe"}`, i))
	}
	urls, _ := newServers(t, fmt.Sprintf(`{"roas": [%s]}`, strings.Join(roas, ",")))
	c := newComponent(t, r, urls)

	if _, err := c.Load(context.Background(), nil); !errors.Is(err, ErrTooManyInvalidROAs) {
		t.Fatalf("Load() error == %v, expected ErrTooManyInvalidROAs", err)
	}
}

func TestLoadAllURLsFail(t *testing.T) {
	r := reporter.NewMock(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer broken.Close()
	c := newComponent(t, r, broken.URL+"/1,"+broken.URL+"/2")

	_, err := c.Load(context.Background(), nil)
	var exhausted *failover.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Load() error == %v, expected ExhaustedError", err)
	}
}
