// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package routeserver describes the route server policy: general
// settings, clients, ASN-specific settings and BGP communities. It also
// checks the consistency of the whole configuration, notably that no two
// communities of different kinds can collide on the wire.
package routeserver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is the error returned when the configuration is
// invalid. Use errors.As with *ConfigurationError to get the details.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError collects all the issues found in a configuration.
type ConfigurationError struct {
	Issues []string
}

// Error returns all the issues, one per line.
func (e *ConfigurationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Issues[0])
	}
	return fmt.Sprintf("%s: %d issues found:\n- %s",
		ErrConfiguration, len(e.Issues), strings.Join(e.Issues, "\n- "))
}

// Is makes errors.Is(err, ErrConfiguration) work.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// issues accumulates configuration issues.
type issues []string

func (i *issues) add(format string, args ...any) {
	*i = append(*i, fmt.Sprintf(format, args...))
}

func (i issues) err() error {
	if len(i) == 0 {
		return nil
	}
	return &ConfigurationError{Issues: i}
}
