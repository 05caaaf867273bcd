// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package lastversion checks if a newer release is available.
package lastversion

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"

	"rsbuilder/common/cache"
	"rsbuilder/common/remotedatasource"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
)

// ErrCheck is returned when the latest release cannot be determined.
var ErrCheck = errors.New("cannot check latest release")

// Component represents the release checker.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	fetcher *remotedatasource.Fetcher[string]
}

// Dependencies define the dependencies of the release checker.
type Dependencies struct {
	Cache *cache.Component
}

// Result is the outcome of a check.
type Result struct {
	Current string `json:"current" yaml:"current"`
	Latest  string `json:"latest,omitempty" yaml:"latest,omitempty"`
	Newer   bool   `json:"newer" yaml:"newer"`
}

// New creates a new release checker.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Cache == nil {
		return nil, errors.New("lastversion: a cache is required")
	}
	return &Component{
		r:       r,
		d:       &dependencies,
		config:  configuration,
		fetcher: remotedatasource.New[string](r, "last-version"),
	}, nil
}

func (c *Component) fetch(ctx context.Context) (string, error) {
	c.r.Info().Msg("checking latest version")
	source := remotedatasource.DefaultSourceConfiguration()
	source.URL = c.config.URL
	source.Timeout = c.config.Timeout
	source.Retries = 0
	source.Transform = c.config.Transform
	versions, err := c.fetcher.Fetch(ctx, source, nil)
	if err != nil {
		return "", fmt.Errorf("error while retrieving latest version info from %s: %w",
			c.config.URL, err)
	}
	return versions[0], nil
}

// Check compares the current version with the latest release. A newer
// release is logged. The check is skipped when disabled.
func (c *Component) Check(ctx context.Context, current string) (Result, error) {
	result := Result{Current: current}
	if !c.config.Enabled {
		return result, nil
	}
	latest, err := enricher.Cached(ctx, c.d.Cache, cache.Key(cache.CategoryLastVersion), c.fetch)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrCheck, err)
	}
	result.Latest = latest

	currentVersion, err := version.NewVersion(current)
	if err != nil {
		return result, fmt.Errorf("%w: invalid current version %q: %w", ErrCheck, current, err)
	}
	latestVersion, err := version.NewVersion(latest)
	if err != nil {
		return result, fmt.Errorf("%w: invalid latest version %q: %w", ErrCheck, latest, err)
	}
	if latestVersion.GreaterThan(currentVersion) {
		result.Newer = true
		c.r.Warn().
			Str("current", current).
			Str("latest", latest).
			Msgf("A new release is available: %s (current: %s)", latest, current)
	}
	return result, nil
}
