// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package enricher contains what is shared by the components retrieving
// routing data from external sources to complete the build context.
package enricher

import "errors"

var (
	// ErrNotFound is returned when the source confirmed there is no data.
	// Such a result is cached and never retried.
	ErrNotFound = errors.New("no data available")
	// ErrTransient is returned when the source could not answer
	// (unreachable, timeout, malformed answer). Another host may be tried.
	ErrTransient = errors.New("transient error")
)
