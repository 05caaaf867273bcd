// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package builder compiles the route server policy into a build context.
// It validates the configuration, retrieves data from external sources
// and writes the result into a file.
package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"

	"rsbuilder/common/daemon"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher/irrdb"
	"rsbuilder/enricher/lastversion"
	"rsbuilder/enricher/peeringdb"
	"rsbuilder/enricher/rpki"
	"rsbuilder/enricher/rtt"
	"rsbuilder/enricher/whoisdump"
	"rsbuilder/routeserver"
)

// ErrBuild is returned when the build cannot be completed. Nothing is
// written in this case.
var ErrBuild = errors.New("build failed")

// Component represents the builder component.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	t      tomb.Tomb
	config Configuration
	policy routeserver.Config

	result *Context
	err    error

	metrics struct {
		builds   *reporter.CounterVec
		duration *reporter.GaugeVec
	}
}

// Dependencies define the dependencies of the builder. Enrichers are
// optional: a phase needing a missing enricher fails the build.
type Dependencies struct {
	Daemon      daemon.Component
	Clock       clock.Clock
	IRRDB       *irrdb.Component
	PeeringDB   *peeringdb.Component
	RPKI        *rpki.Component
	WhoisDump   *whoisdump.Component
	RTT         *rtt.Component
	LastVersion *lastversion.Component
}

// New creates a new builder component for the provided policy.
func New(r *reporter.Reporter, configuration Configuration, policy routeserver.Config, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: configuration,
		policy: policy,
	}
	if c.d.Daemon != nil {
		c.d.Daemon.Track(&c.t, "builder")
	}
	c.metrics.builds = r.CounterVec(
		reporter.CounterOpts{
			Name: "builds_total",
			Help: "Number of builds by result.",
		},
		[]string{"result"})
	c.metrics.duration = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "phase_duration_seconds",
			Help: "Time spent in each phase of the last build.",
		},
		[]string{"phase"})
	return &c, nil
}

// Start runs the build in the background. The daemon is terminated once
// the build is over.
func (c *Component) Start() error {
	c.r.Info().Str("output", c.config.Output).Msg("starting builder component")
	c.t.Go(func() error {
		ctx := c.t.Context(context.Background())
		c.result, c.err = c.Build(ctx)
		return nil
	})
	return nil
}

// Stop interrupts the build if still running.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("builder component stopped")
	c.t.Kill(nil)
	return c.t.Wait()
}

// Result returns the outcome of the build started with Start. It should
// only be called once the component is stopped.
func (c *Component) Result() (*Context, error) {
	if c.result == nil && c.err == nil {
		return nil, fmt.Errorf("%w: interrupted", ErrBuild)
	}
	return c.result, c.err
}

// phase runs one step of the build and records its duration.
func (c *Component) phase(name string, fn func() error) error {
	start := c.d.Clock.Now()
	defer func() {
		c.metrics.duration.WithLabelValues(name).Set(c.d.Clock.Since(start).Seconds())
	}()
	c.r.Debug().Str("phase", name).Msg("starting build phase")
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuild, name, err)
	}
	return nil
}

// Build runs all the phases and writes the build context. On error,
// nothing is written.
func (c *Component) Build(ctx context.Context) (*Context, error) {
	result, err := c.build(ctx)
	if err == nil {
		err = c.phase("write", func() error { return c.write(result) })
	}
	if err != nil {
		c.metrics.builds.WithLabelValues("failed").Inc()
		c.r.Err(err).Msg("build failed")
		return nil, err
	}
	c.metrics.builds.WithLabelValues("ok").Inc()
	c.r.Info().
		Str("output", c.config.Output).
		Int("clients", len(result.Clients)).
		Int("bundles", len(result.Bundles)).
		Msg("build completed")
	return result, nil
}
