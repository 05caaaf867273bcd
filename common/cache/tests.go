// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package cache

import (
	"testing"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
)

// NewMock creates a started cache component using a temporary directory and
// the provided clock.
func NewMock(t *testing.T, r *reporter.Reporter, clk clock.Clock) *Component {
	t.Helper()
	config := DefaultConfiguration()
	config.Directory = t.TempDir()
	c, err := New(r, config, Dependencies{Clock: clk})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	helpers.StartStop(t, c)
	return c
}
