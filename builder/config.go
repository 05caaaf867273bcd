// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package builder

// Configuration describes the configuration for the builder.
type Configuration struct {
	// Output is the file where the build context is written.
	Output string `validate:"required"`
	// Format is the format of the output file (json or yaml).
	Format string `validate:"oneof=json yaml"`
	// IPVersion restricts the build to one address family (4 or 6). 0
	// means both.
	IPVersion int `validate:"oneof=0 4 6"`
}

// DefaultConfiguration represents the default configuration for the builder.
func DefaultConfiguration() Configuration {
	return Configuration{
		Output: "rsbuilder.json",
		Format: "json",
	}
}
