// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package enricher

import (
	"context"
	"errors"

	"rsbuilder/common/cache"
)

// Cached returns the value for the provided cache reference. When the cache
// has no fresh entry, fetch is invoked and its result saved, including when
// it returns ErrNotFound. A negative entry is returned as ErrNotFound.
// Failing to save into the cache is returned as is (wrapping
// cache.ErrStorage).
func Cached[T any](ctx context.Context, c *cache.Component, ref cache.Ref, fetch func(context.Context) (T, error)) (T, error) {
	var result T
	found, negative := c.LoadInto(ref, &result)
	if found && negative {
		return result, ErrNotFound
	}
	if found {
		return result, nil
	}

	result, err := fetch(ctx)
	if errors.Is(err, ErrNotFound) {
		if saveErr := c.Save(ref, nil); saveErr != nil {
			return result, saveErr
		}
		return result, err
	}
	if err != nil {
		return result, err
	}
	if err := c.Save(ref, result); err != nil {
		return result, err
	}
	return result, nil
}
