// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package lastversion

import (
	"time"

	"rsbuilder/common/remotedatasource"
)

// Configuration describes the configuration for the release check.
type Configuration struct {
	// Enabled tells if the latest release should be checked during a
	// build.
	Enabled bool
	// URL is the JSON document describing the latest release.
	URL string `validate:"required_if=Enabled true,omitempty,url"`
	// Transform extracts the version from the JSON document.
	Transform remotedatasource.TransformQuery
	// Timeout is the maximum time to retrieve the latest release.
	Timeout time.Duration `validate:"min=1s"`
}

// DefaultConfiguration represents the default configuration for the release check.
func DefaultConfiguration() Configuration {
	return Configuration{
		Enabled:   false,
		Transform: remotedatasource.MustParseTransformQuery(`.tag_name | ltrimstr("v")`),
		Timeout:   10 * time.Second,
	}
}
