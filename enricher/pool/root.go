// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package pool executes a finite set of fetch tasks with a bounded number of
// workers. A failing task does not stop the other ones: the whole queue is
// drained and a single error is returned at the end.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/reporter"
)

// ErrTasksFailed is returned by Run when at least one task failed.
var ErrTasksFailed = errors.New("some tasks failed")

// Fetcher retrieves the output for one input.
type Fetcher[I, O any] interface {
	// Fetch retrieves the data for the provided input. It may block.
	Fetch(ctx context.Context, input I) (O, error)
	// Label returns a human-readable description of the input.
	Label(input I) string
}

// Store is called with the result of each successful task. Calls are
// serialized.
type Store[I, O any] func(input I, output O)

// Dependencies define the dependencies of a worker pool.
type Dependencies struct {
	Clock clock.Clock
}

// Pool is a worker pool.
type Pool[I, O any] struct {
	r       *reporter.Reporter
	d       *Dependencies
	name    string
	config  Configuration
	fetcher Fetcher[I, O]
	store   Store[I, O]

	storeLock sync.Mutex

	metrics struct {
		tasks     *reporter.CounterVec
		remaining *reporter.GaugeVec
		running   *reporter.GaugeVec
		duration  *reporter.HistogramVec
	}
}

// New creates a new worker pool. The name is used for logs and metrics.
func New[I, O any](r *reporter.Reporter, name string, configuration Configuration, dependencies Dependencies,
	fetcher Fetcher[I, O], store Store[I, O],
) (*Pool[I, O], error) {
	if configuration.Workers < 1 {
		return nil, fmt.Errorf("%s pool: at least one worker is needed", name)
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if configuration.MonitorInterval <= 0 {
		configuration.MonitorInterval = DefaultConfiguration().MonitorInterval
	}
	p := Pool[I, O]{
		r:       r,
		d:       &dependencies,
		name:    name,
		config:  configuration,
		fetcher: fetcher,
		store:   store,
	}
	p.metrics.tasks = r.CounterVec(
		reporter.CounterOpts{
			Name: "tasks_total",
			Help: "Number of tasks by status.",
		},
		[]string{"pool", "status"})
	p.metrics.remaining = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "tasks_remaining",
			Help: "Number of tasks not yet completed.",
		},
		[]string{"pool"})
	p.metrics.running = r.GaugeVec(
		reporter.GaugeOpts{
			Name: "tasks_running",
			Help: "Number of tasks currently running.",
		},
		[]string{"pool"})
	p.metrics.duration = r.HistogramVec(
		reporter.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Time spent executing a task.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"pool"})
	return &p, nil
}

// Run executes one task per input and waits for all of them to complete.
// Each input is handed exactly once to the fetcher. If any task failed,
// ErrTasksFailed is returned once the queue is drained.
func (p *Pool[I, O]) Run(ctx context.Context, inputs []I) error {
	if len(inputs) == 0 {
		return nil
	}
	queue := make(chan I, len(inputs))
	for _, input := range inputs {
		queue <- input
	}
	close(queue)
	p.metrics.tasks.WithLabelValues(p.name, "queued").Add(float64(len(inputs)))

	var remaining atomic.Int64
	remaining.Store(int64(len(inputs)))
	p.metrics.remaining.WithLabelValues(p.name).Set(float64(len(inputs)))
	var failures atomic.Int64
	failed := make(chan struct{}, 1)

	workers := min(p.config.Workers, len(inputs))
	p.r.Debug().
		Str("pool", p.name).
		Int("tasks", len(inputs)).
		Int("workers", workers).
		Msg("starting worker pool")

	// Progress monitor
	done := make(chan struct{})
	var monitorWG sync.WaitGroup
	monitorWG.Add(1)
	go func() {
		defer monitorWG.Done()
		ticker := p.d.Clock.Ticker(p.config.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n := remaining.Load(); n > 0 {
					p.r.Info().Str("pool", p.name).Msgf("%d tasks remaining", n)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for input := range queue {
				if err := p.execute(ctx, input); err != nil {
					failures.Add(1)
					select {
					case failed <- struct{}{}:
					default:
					}
				}
				remaining.Add(-1)
				p.metrics.remaining.WithLabelValues(p.name).Dec()
			}
		}()
	}
	wg.Wait()
	close(done)
	monitorWG.Wait()

	select {
	case <-failed:
		return fmt.Errorf("%s: %w (%d out of %d)", p.name, ErrTasksFailed, failures.Load(), len(inputs))
	default:
	}
	p.r.Debug().Str("pool", p.name).Msg("worker pool completed")
	return nil
}

// execute runs a single task. A panic is converted into an error.
func (p *Pool[I, O]) execute(ctx context.Context, input I) (err error) {
	label := p.fetcher.Label(input)
	start := p.d.Clock.Now()
	p.metrics.running.WithLabelValues(p.name).Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		p.metrics.running.WithLabelValues(p.name).Dec()
		p.metrics.duration.WithLabelValues(p.name).Observe(p.d.Clock.Since(start).Seconds())
		if err != nil {
			p.metrics.tasks.WithLabelValues(p.name, "failed").Inc()
			p.r.Err(err).Str("pool", p.name).Str("task", label).
				Msgf("error while processing %s", label)
			return
		}
		p.metrics.tasks.WithLabelValues(p.name, "succeeded").Inc()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	output, err := p.fetcher.Fetch(ctx, input)
	if err != nil {
		return err
	}
	p.storeLock.Lock()
	defer p.storeLock.Unlock()
	p.store(input, output)
	return nil
}
