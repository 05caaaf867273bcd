// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package cache implements a persistent cache for data retrieved from
// external sources. Each entry is timestamped and considered fresh during a
// duration depending on its category. A null payload is a valid entry
// recording that the source confirmed there was no data.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/reporter"
)

// ErrStorage is returned when the cache cannot persist an entry.
var ErrStorage = errors.New("cache storage error")

// Component represents the cache component.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	backend backend

	metrics struct {
		lookups *reporter.CounterVec
		saves   *reporter.CounterVec
	}
}

// Dependencies define the dependencies of the cache component.
type Dependencies struct {
	Clock clock.Clock
}

// entry is the on-disk representation of a cache entry.
type entry struct {
	TS   *int64          `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// New creates a new cache component.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if _, ok := configuration.Expiry[CategoryDefault]; !ok {
		return nil, fmt.Errorf("no expiry for %q category", CategoryDefault)
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: configuration,
	}
	c.metrics.lookups = r.CounterVec(
		reporter.CounterOpts{
			Name: "lookups_total",
			Help: "Number of cache lookups by result.",
		},
		[]string{"category", "result"})
	c.metrics.saves = r.CounterVec(
		reporter.CounterOpts{
			Name: "saves_total",
			Help: "Number of entries saved into the cache.",
		},
		[]string{"category"})
	return &c, nil
}

// Start opens the storage backend.
func (c *Component) Start() error {
	c.r.Info().
		Str("directory", c.config.Directory).
		Str("backend", c.config.Backend).
		Msg("starting cache component")
	var err error
	switch c.config.Backend {
	case "leveldb":
		c.backend, err = newLevelDBBackend(c.config.Directory)
	default:
		c.backend, err = newFilesBackend(c.config.Directory)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Stop closes the storage backend.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("cache component stopped")
	if c.backend == nil {
		return nil
	}
	return c.backend.close()
}

// TTL returns the duration an entry of the provided category stays fresh.
func (c *Component) TTL(category string) time.Duration {
	if ttl, ok := c.config.Expiry[category]; ok {
		return ttl
	}
	return c.config.Expiry[CategoryDefault]
}

// Load retrieves a fresh entry from the cache. The second value tells if the
// entry was found. A negative entry is returned as a JSON null.
func (c *Component) Load(ref Ref) (json.RawMessage, bool) {
	content, err := c.backend.get(ref.Key)
	if errors.Is(err, errMissing) {
		c.metrics.lookups.WithLabelValues(ref.Category, "miss").Inc()
		return nil, false
	}
	if err != nil {
		c.r.Err(err).Str("key", ref.Key).Msg("cache entry unreadable, ignoring")
		c.metrics.lookups.WithLabelValues(ref.Category, "corrupt").Inc()
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(content, &e); err != nil {
		c.r.Err(err).Str("key", ref.Key).Msg("cache entry unreadable, ignoring")
		c.metrics.lookups.WithLabelValues(ref.Category, "corrupt").Inc()
		return nil, false
	}
	if e.TS == nil || e.Data == nil {
		c.metrics.lookups.WithLabelValues(ref.Category, "miss").Inc()
		return nil, false
	}
	age := c.d.Clock.Now().Sub(time.Unix(*e.TS, 0))
	if age >= c.TTL(ref.Category) {
		c.metrics.lookups.WithLabelValues(ref.Category, "expired").Inc()
		return nil, false
	}
	if string(e.Data) == "null" {
		c.metrics.lookups.WithLabelValues(ref.Category, "negative").Inc()
	} else {
		c.metrics.lookups.WithLabelValues(ref.Category, "hit").Inc()
	}
	return e.Data, true
}

// LoadInto retrieves a fresh entry from the cache and decodes it into out.
// found is false on a miss. negative is true when the entry records the
// absence of data, in which case out is left untouched.
func (c *Component) LoadInto(ref Ref, out any) (found bool, negative bool) {
	data, ok := c.Load(ref)
	if !ok {
		return false, false
	}
	if string(data) == "null" {
		return true, true
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.r.Err(err).Str("key", ref.Key).Msg("cache entry unreadable, ignoring")
		c.metrics.lookups.WithLabelValues(ref.Category, "corrupt").Inc()
		return false, false
	}
	return true, false
}

// Save stores an entry into the cache. A nil payload records the absence of
// data. Any error is wrapped into ErrStorage.
func (c *Component) Save(ref Ref, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: cannot encode %q: %w", ErrStorage, ref.Key, err)
	}
	ts := c.d.Clock.Now().Unix()
	content, err := json.Marshal(entry{TS: &ts, Data: data})
	if err != nil {
		return fmt.Errorf("%w: cannot encode %q: %w", ErrStorage, ref.Key, err)
	}
	if err := c.backend.put(ref.Key, content); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	c.metrics.saves.WithLabelValues(ref.Category).Inc()
	return nil
}
