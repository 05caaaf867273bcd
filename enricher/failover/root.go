// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package failover tries an operation against an ordered list of hosts.
// A host failing with a transient error is recorded as dead and is not
// used anymore for the next operations. The next host is tried instead.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
)

// ErrNoHostsLeft is returned when all the hosts were already dead.
var ErrNoHostsLeft = errors.New("all the hosts failed so far; there are no more hosts to use")

// Attempt is a failed attempt against a host.
type Attempt struct {
	Host string
	Err  error
}

// ExhaustedError is returned when every usable host failed.
type ExhaustedError struct {
	Resolver string
	Attempts []Attempt
}

// Error returns the failure reason of every attempted host.
func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %s", attempt.Host, attempt.Err))
	}
	return fmt.Sprintf("%s: all hosts failed (%s)", e.Resolver, strings.Join(reasons, "; "))
}

// Configuration describes the configuration of a resolver.
type Configuration struct {
	// Hosts is the ordered list of hosts to try.
	Hosts []string `validate:"min=1,dive,required"`
	// Timeout is the timeout for a single attempt.
	Timeout time.Duration `validate:"min=0"`
}

// Failover runs operations against the first host alive.
type Failover[T any] struct {
	r      *reporter.Reporter
	name   string
	config Configuration
	dead   *DeadHosts

	metrics struct {
		attempts *reporter.CounterVec
		failures *reporter.CounterVec
		dead     *reporter.GaugeVec
	}
}

// New creates a new resolver named after its purpose. The set of dead hosts
// is shared.
func New[T any](r *reporter.Reporter, name string, config Configuration, dead *DeadHosts) *Failover[T] {
	f := Failover[T]{
		r:      r,
		name:   name,
		config: config,
		dead:   dead,
	}
	f.metrics.attempts = r.CounterVec(
		reporter.CounterOpts{
			Name: "attempts_total",
			Help: "Number of attempts against a host.",
		},
		[]string{"resolver", "host"})
	f.metrics.failures = r.CounterVec(
		reporter.CounterOpts{
			Name: "failures_total",
			Help: "Number of transient failures of a host.",
		},
		[]string{"resolver", "host"})
	f.metrics.dead = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "dead_hosts",
			Help: "Number of hosts known to be dead.",
		},
		[]string{"resolver"})
	return &f
}

// Do runs the operation against each host alive, in order, until one
// succeeds. A transient error (enricher.ErrTransient or a timeout) marks
// the host as dead and the next host is tried. Any other error, including
// enricher.ErrNotFound, is returned immediately.
func (f *Failover[T]) Do(ctx context.Context, label string, op func(ctx context.Context, host string) (T, error)) (T, error) {
	var zero T
	attempts := []Attempt{}
	for idx, host := range f.config.Hosts {
		if f.dead.IsDead(host) {
			continue
		}
		attemptCtx := ctx
		cancel := func() {}
		if f.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		}
		f.metrics.attempts.WithLabelValues(f.name, host).Inc()
		result, err := op(attemptCtx, host)
		cancel()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			// Our caller gave up, the host is not to blame.
			return zero, fmt.Errorf("%s: %w", label, ctx.Err())
		}
		if !errors.Is(err, enricher.ErrTransient) && !errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		f.dead.MarkDead(host)
		f.metrics.failures.WithLabelValues(f.name, host).Inc()
		f.metrics.dead.WithLabelValues(f.name).Set(float64(f.deadCount()))
		attempts = append(attempts, Attempt{Host: host, Err: err})
		if f.anyAlive(f.config.Hosts[idx+1:]) {
			f.r.Warn().Err(err).
				Str("resolver", f.name).
				Str("host", host).
				Str("task", label).
				Msgf("The host %s will not be used for the next %s queries. "+
					"Another attempt will be performed using the next host in the list.", host, f.name)
			continue
		}
		f.r.Error().Err(err).
			Str("resolver", f.name).
			Str("host", host).
			Str("task", label).
			Msgf("The host %s will not be used for the next %s queries. "+
				"No more attempts will be performed, all the hosts in the list failed.", host, f.name)
	}
	if len(attempts) == 0 {
		f.r.Error().
			Str("resolver", f.name).
			Str("task", label).
			Msgf("All the %s hosts timed out so far; there are no more hosts to use.", f.name)
		return zero, fmt.Errorf("%s: %w", f.name, ErrNoHostsLeft)
	}
	return zero, &ExhaustedError{Resolver: f.name, Attempts: attempts}
}

func (f *Failover[T]) anyAlive(hosts []string) bool {
	for _, host := range hosts {
		if !f.dead.IsDead(host) {
			return true
		}
	}
	return false
}

// deadCount returns the number of dead hosts of this resolver.
func (f *Failover[T]) deadCount() int {
	count := 0
	for _, host := range f.config.Hosts {
		if f.dead.IsDead(host) {
			count++
		}
	}
	return count
}
