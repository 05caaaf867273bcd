// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
)

// squareFetcher computes the square of its input. It fails for 3 and
// panics for 13.
type squareFetcher struct {
	lock    sync.Mutex
	fetched []int
	current atomic.Int32
	max     atomic.Int32
	delay   time.Duration
	block   chan struct{}
}

func (f *squareFetcher) Fetch(_ context.Context, input int) (int, error) {
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		m := f.max.Load()
		if n <= m || f.max.CompareAndSwap(m, n) {
			break
		}
	}
	f.lock.Lock()
	f.fetched = append(f.fetched, input)
	f.lock.Unlock()
	if f.block != nil {
		<-f.block
	}
	time.Sleep(f.delay)
	switch input {
	case 3:
		return 0, errors.New("cannot compute square of 3")
	case 13:
		panic("unlucky")
	}
	return input * input, nil
}

func (f *squareFetcher) Label(input int) string {
	return fmt.Sprintf("square of %d", input)
}

func newPool(t *testing.T, r *reporter.Reporter, workers int, f *squareFetcher, results map[int]int) *Pool[int, int] {
	t.Helper()
	config := DefaultConfiguration()
	config.Workers = workers
	p, err := New(r, "square", config, Dependencies{Clock: clock.NewMock()}, f,
		func(input, output int) { results[input] = output })
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	return p
}

func TestRunSuccess(t *testing.T) {
	r := reporter.NewMock(t)
	f := &squareFetcher{}
	results := map[int]int{}
	p := newPool(t, r, 3, f, results)

	if err := p.Run(context.Background(), []int{1, 2, 4, 5, 6}); err != nil {
		t.Fatalf("Run() error:\n%+v", err)
	}
	expected := map[int]int{1: 1, 2: 4, 4: 16, 5: 25, 6: 36}
	if diff := helpers.Diff(results, expected); diff != "" {
		t.Fatalf("Run() (-got, +want):\n%s", diff)
	}

	gotMetrics := r.GetMetrics("rsbuilder_enricher_pool_", "tasks_")
	expectedMetrics := map[string]string{
		`tasks_total{pool="square",status="queued"}`:    "5",
		`tasks_total{pool="square",status="succeeded"}`: "5",
		`tasks_remaining{pool="square"}`:                "0",
		`tasks_running{pool="square"}`:                  "0",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	r := reporter.NewMock(t)
	f := &squareFetcher{}
	results := map[int]int{}
	p := newPool(t, r, 2, f, results)

	err := p.Run(context.Background(), []int{1, 2, 3, 4, 5, 13})
	if !errors.Is(err, ErrTasksFailed) {
		t.Fatalf("Run() error:\n%+v, expected ErrTasksFailed", err)
	}
	// Every task was executed once
	sort.Ints(f.fetched)
	if diff := helpers.Diff(f.fetched, []int{1, 2, 3, 4, 5, 13}); diff != "" {
		t.Fatalf("Fetch() calls (-got, +want):\n%s", diff)
	}
	expected := map[int]int{1: 1, 2: 4, 4: 16, 5: 25}
	if diff := helpers.Diff(results, expected); diff != "" {
		t.Fatalf("Run() (-got, +want):\n%s", diff)
	}

	gotMetrics := r.GetMetrics("rsbuilder_enricher_pool_", "tasks_total")
	expectedMetrics := map[string]string{
		`tasks_total{pool="square",status="queued"}`:    "6",
		`tasks_total{pool="square",status="succeeded"}`: "4",
		`tasks_total{pool="square",status="failed"}`:    "2",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestRunBoundedWorkers(t *testing.T) {
	r := reporter.NewMock(t)
	f := &squareFetcher{delay: 10 * time.Millisecond}
	results := map[int]int{}
	p := newPool(t, r, 2, f, results)

	inputs := []int{}
	for i := 20; i < 30; i++ {
		inputs = append(inputs, i)
	}
	if err := p.Run(context.Background(), inputs); err != nil {
		t.Fatalf("Run() error:\n%+v", err)
	}
	if got := f.max.Load(); got > 2 {
		t.Fatalf("Run() executed %d tasks concurrently, expected at most 2", got)
	}
	if len(results) != 10 {
		t.Fatalf("Run() stored %d results, expected 10", len(results))
	}
}

func TestRunEmpty(t *testing.T) {
	r := reporter.NewMock(t)
	p := newPool(t, r, 2, &squareFetcher{}, map[int]int{})
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error:\n%+v", err)
	}
}

func TestRunMonitor(t *testing.T) {
	r := reporter.NewMock(t)
	clk := clock.NewMock()
	f := &squareFetcher{block: make(chan struct{})}
	results := map[int]int{}
	p, err := New(r, "square", Configuration{Workers: 1, MonitorInterval: 30 * time.Second},
		Dependencies{Clock: clk}, f, func(input, output int) { results[input] = output })
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}

	errCh := make(chan error)
	go func() {
		errCh <- p.Run(context.Background(), []int{1, 2, 4})
	}()

	// Wait for the first task to be running
	deadline := time.After(time.Second)
	for f.current.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run() did not start any task")
		case <-time.After(time.Millisecond):
		}
	}
	clk.Add(30 * time.Second)
	gotMetrics := r.GetMetrics("rsbuilder_enricher_pool_", "tasks_r")
	expectedMetrics := map[string]string{
		`tasks_remaining{pool="square"}`: "3",
		`tasks_running{pool="square"}`:   "1",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}

	close(f.block)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error:\n%+v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return")
	}
	if len(results) != 3 {
		t.Fatalf("Run() stored %d results, expected 3", len(results))
	}
}

func TestRunCanceledContext(t *testing.T) {
	r := reporter.NewMock(t)
	f := &squareFetcher{}
	p := newPool(t, r, 2, f, map[int]int{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, []int{1, 2}); !errors.Is(err, ErrTasksFailed) {
		t.Fatalf("Run() error:\n%+v, expected ErrTasksFailed", err)
	}
	if len(f.fetched) != 0 {
		t.Fatalf("Fetch() called %d times, expected 0", len(f.fetched))
	}
}

func TestNewWithoutWorkers(t *testing.T) {
	r := reporter.NewMock(t)
	_, err := New[int, int](r, "square", Configuration{}, Dependencies{}, &squareFetcher{},
		func(int, int) {})
	if err == nil {
		t.Fatal("New() did not error")
	}
}
