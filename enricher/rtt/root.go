// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package rtt retrieves the round trip time of each client using an
// external program.
package rtt

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
	"rsbuilder/enricher/pool"
)

// Component represents the RTT enricher.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	metrics struct {
		results *reporter.CounterVec
	}
}

// Dependencies define the dependencies of the RTT enricher.
type Dependencies struct {
	Clock  clock.Clock
	Runner enricher.Runner
}

// Target is a client address whose RTT is requested.
type Target struct {
	ClientID string
	ASN      uint32
	IP       netip.Addr
}

// New creates a new RTT enricher. When no runner is provided, the
// configured program must be executable.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if dependencies.Runner == nil {
		if configuration.Path != "" {
			if _, err := exec.LookPath(configuration.Path); err != nil {
				return nil, fmt.Errorf("the file %s used for the RTT getter is not executable: %w",
					configuration.Path, err)
			}
		}
		dependencies.Runner = enricher.ExecRunner{}
	}
	c := Component{
		r:      r,
		d:      &dependencies,
		config: configuration,
	}
	c.metrics.results = r.CounterVec(
		reporter.CounterOpts{
			Name: "results_total",
			Help: "Number of RTT retrieved, by result.",
		},
		[]string{"result"})
	return &c, nil
}

// Enabled tells if a program to get RTTs is configured.
func (c *Component) Enabled() bool {
	return c.config.Path != ""
}

// Get returns the RTT in milliseconds of the provided target. When the
// program does not know the RTT, nil is returned.
func (c *Component) Get(ctx context.Context, target Target) (*float64, error) {
	args := []string{target.IP.String(), strconv.FormatUint(uint64(target.ASN), 10), target.ClientID}
	line := enricher.CommandLine(c.config.Path, args)
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	stdout, _, err := c.d.Runner.Run(ctx, c.config.Path, args)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		c.metrics.results.WithLabelValues("error").Inc()
		c.r.Err(err).Str("command", line).
			Msgf("Error while executing RTT getter command '%s'", line)
		return nil, fmt.Errorf("error while executing RTT getter command '%s': %w", line, err)
	}
	value, err := parseRTT(string(stdout))
	if err != nil {
		c.metrics.results.WithLabelValues("error").Inc()
		c.r.Err(err).Str("command", line).
			Msgf("Error while parsing result from RTT getter command '%s'", line)
		return nil, fmt.Errorf("error while parsing result from RTT getter command '%s': %w", line, err)
	}
	if value == nil {
		c.metrics.results.WithLabelValues("unknown").Inc()
	} else {
		c.metrics.results.WithLabelValues("ok").Inc()
	}
	return value, nil
}

// Resolve retrieves the RTT of all the provided targets using a worker
// pool. Targets with an unknown RTT are absent from the result.
func (c *Component) Resolve(ctx context.Context, targets []Target) (map[netip.Addr]float64, error) {
	results := map[netip.Addr]float64{}
	p, err := pool.New[Target, *float64](c.r, "rtt", c.config.Configuration,
		pool.Dependencies{Clock: c.d.Clock},
		getter{c},
		func(target Target, value *float64) {
			if value != nil {
				results[target.IP] = *value
			}
		})
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, targets); err != nil {
		return nil, err
	}
	return results, nil
}

type getter struct {
	c *Component
}

func (g getter) Fetch(ctx context.Context, target Target) (*float64, error) {
	return g.c.Get(ctx, target)
}

func (getter) Label(target Target) string {
	return fmt.Sprintf("RTT of %s (%s)", target.ClientID, target.IP)
}

var rttRegexp = regexp.MustCompile(`^\d+[.]?\d*$`)

// parseRTT parses the output of the RTT getter. Only the first line is
// used. It is either a number or "none".
func parseRTT(raw string) (*float64, error) {
	if raw == "" {
		return nil, errors.New("no value returned")
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, errors.New("empty value returned")
	}
	value, _, _ = strings.Cut(value, "\n")
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "none") {
		return nil, nil
	}
	if !rttRegexp.MatchString(value) {
		return nil, fmt.Errorf("invalid value: %s", value)
	}
	rtt, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %s", value)
	}
	return &rtt, nil
}
