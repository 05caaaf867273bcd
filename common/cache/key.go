// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"strings"
)

// Ref identifies a cached entry: the category selects the expiry, the key is
// the storage identifier (a filename for the "files" backend).
type Ref struct {
	Category string
	Key      string
}

// Key derives the reference of a cached entry from its category and a
// logical identifier (a bundle ID, an ASN, nothing for singletons). This is
// a pure function: the same input always gives the same key.
func Key(category string, logicalID ...string) Ref {
	parts := make([]string, 0, len(logicalID)+1)
	parts = append(parts, sanitize(strings.ToLower(category)))
	for _, id := range logicalID {
		if id != "" {
			parts = append(parts, sanitize(id))
		}
	}
	return Ref{
		Category: category,
		Key:      strings.Join(parts, "-"),
	}
}

// String returns the key.
func (r Ref) String() string {
	return r.Key
}

func sanitize(in string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '.', r == '-':
			return r
		}
		return '_'
	}, in)
}
