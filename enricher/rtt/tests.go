// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package rtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
)

// FakeRunner emulates an RTT getter. Outputs maps an IP address to the
// output of the program. A missing address makes the program fail.
type FakeRunner struct {
	Outputs map[string]string
}

// Run emulates a run of the RTT getter.
func (f FakeRunner) Run(_ context.Context, _ string, args []string) ([]byte, []byte, error) {
	output, ok := f.Outputs[args[0]]
	if !ok {
		return nil, []byte("unknown client"), errors.New("exit status 1")
	}
	return []byte(output), nil, nil
}

// NewMock creates a new RTT enricher using the provided runner.
func NewMock(t *testing.T, r *reporter.Reporter, runner enricher.Runner) *Component {
	t.Helper()
	config := DefaultConfiguration()
	config.Path = "/usr/local/bin/rtt-getter"
	config.Timeout = time.Second
	c, err := New(r, config, Dependencies{
		Clock:  clock.NewMock(),
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	return c
}
