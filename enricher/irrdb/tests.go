// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package irrdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/cache"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
)

// Behaviours of a fake IRR host.
const (
	// HostTimeout makes the host hang until the context is done.
	HostTimeout = "timeout"
	// HostFailure makes bgpq4 exit with an error.
	HostFailure = "failure"
	// HostGarbage makes bgpq4 output something which is not JSON.
	HostGarbage = "garbage"
)

// FakeRunner emulates bgpq4 with static data.
type FakeRunner struct {
	// Hosts maps a host to its behaviour. A missing host answers.
	Hosts map[string]string
	// ASNs maps an object name to its origin ASNs.
	ASNs map[string][]uint32
	// Prefixes maps an object name to its prefixes.
	Prefixes map[string][]string
	// FailAFI makes every prefix query for this address family fail.
	FailAFI int

	lock     sync.Mutex
	commands [][]string
}

type fakeExitError int

func (e fakeExitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e fakeExitError) ExitCode() int { return int(e) }

// Run emulates a bgpq4 run.
func (f *FakeRunner) Run(ctx context.Context, _ string, args []string) ([]byte, []byte, error) {
	f.lock.Lock()
	f.commands = append(f.commands, slices.Clone(args))
	f.lock.Unlock()

	host := args[slices.Index(args, "-h")+1]
	switch f.Hosts[host] {
	case HostTimeout:
		<-ctx.Done()
		return nil, nil, ctx.Err()
	case HostFailure:
		return nil, []byte("FATAL ERROR: connection refused"), fakeExitError(1)
	case HostGarbage:
		return []byte("garbage"), nil, nil
	}

	list := slices.Index(args, "-l")
	kind := args[list+1]
	names := args[list+2:]
	if len(names) >= 2 && names[0] == "-R" {
		names = names[2:]
	}
	switch kind {
	case "asn_list":
		asns := []uint32{}
		for _, name := range names {
			asns = append(asns, f.ASNs[name]...)
		}
		slices.Sort(asns)
		out, _ := json.Marshal(map[string]any{kind: slices.Compact(asns)})
		return out, nil, nil
	case "prefix_list":
		ipv4 := slices.Contains(args, "-4")
		if f.FailAFI != 0 && slices.Contains(args, fmt.Sprintf("-%d", f.FailAFI)) {
			return nil, []byte("FATAL ERROR: connection reset"), fakeExitError(1)
		}
		prefixes := []map[string]any{}
		for _, name := range names {
			for _, p := range f.Prefixes[name] {
				prefix := netip.MustParsePrefix(p)
				if prefix.Addr().Is4() != ipv4 {
					continue
				}
				entry := map[string]any{"prefix": p, "exact": true}
				if slices.Contains(args, "-R") {
					entry = map[string]any{
						"prefix":        p,
						"exact":         false,
						"greater-equal": prefix.Bits(),
						"less-equal":    prefix.Addr().BitLen(),
					}
				}
				prefixes = append(prefixes, entry)
			}
		}
		out, _ := json.Marshal(map[string]any{kind: prefixes})
		return out, nil, nil
	}
	return nil, []byte("unknown command"), fakeExitError(2)
}

// Commands returns the commands run so far.
func (f *FakeRunner) Commands() [][]string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return slices.Clone(f.commands)
}

// NewMock creates a new IRR enricher using the provided fake runner.
func NewMock(t *testing.T, r *reporter.Reporter, c *cache.Component, runner enricher.Runner) *Component {
	t.Helper()
	config := DefaultConfiguration()
	config.Hosts = []string{"irr1.example.net", "irr2.example.net"}
	config.Sources = []string{"RIPE"}
	config.Timeout = 50 * time.Millisecond
	component, err := New(r, config, Dependencies{
		Cache:  c,
		Clock:  clock.NewMock(),
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	return component
}
