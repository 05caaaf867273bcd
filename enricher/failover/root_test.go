// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package failover

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher"
)

// fakeHosts answers a query depending on the host.
type fakeHosts struct {
	behaviours map[string]error
	queried    []string
}

func (f *fakeHosts) op(ctx context.Context, host string) (string, error) {
	f.queried = append(f.queried, host)
	err := f.behaviours[host]
	if errors.Is(err, context.DeadlineExceeded) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("answer from %s", host), nil
}

func TestFailoverSkipsDeadHost(t *testing.T) {
	r := reporter.NewMock(t)
	dead := NewDeadHosts(clock.NewMock(), 0)
	f := New[string](r, "irr", Configuration{
		Hosts:   []string{"h1", "h2"},
		Timeout: 10 * time.Millisecond,
	}, dead)
	hosts := &fakeHosts{behaviours: map[string]error{"h1": context.DeadlineExceeded}}

	got, err := f.Do(context.Background(), "AS-FOO", hosts.op)
	if err != nil {
		t.Fatalf("Do() error:\n%+v", err)
	}
	if got != "answer from h2" {
		t.Errorf("Do() == %q, expected answer from h2", got)
	}
	if !dead.IsDead("h1") || dead.IsDead("h2") {
		t.Error("IsDead(): h1 should be dead, not h2")
	}

	// Second query should not try h1.
	got, err = f.Do(context.Background(), "AS-BAR", hosts.op)
	if err != nil {
		t.Fatalf("Do() error:\n%+v", err)
	}
	if got != "answer from h2" {
		t.Errorf("Do() == %q, expected answer from h2", got)
	}
	if diff := helpers.Diff(hosts.queried, []string{"h1", "h2", "h2"}); diff != "" {
		t.Errorf("Do() queried hosts (-got, +want):\n%s", diff)
	}

	gotMetrics := r.GetMetrics("rsbuilder_enricher_failover_")
	expectedMetrics := map[string]string{
		`attempts_total{host="h1",resolver="irr"}`: "1",
		`attempts_total{host="h2",resolver="irr"}`: "2",
		`failures_total{host="h1",resolver="irr"}`: "1",
		`dead_hosts{resolver="irr"}`:               "1",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Errorf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestFailoverAllHostsFail(t *testing.T) {
	r := reporter.NewMock(t)
	dead := NewDeadHosts(clock.NewMock(), 0)
	f := New[string](r, "irr", Configuration{Hosts: []string{"h1", "h2"}}, dead)
	hosts := &fakeHosts{behaviours: map[string]error{
		"h1": fmt.Errorf("connection refused: %w", enricher.ErrTransient),
		"h2": fmt.Errorf("garbage output: %w", enricher.ErrTransient),
	}}

	_, err := f.Do(context.Background(), "AS-FOO", hosts.op)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error == %v, expected ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 2 || exhausted.Attempts[0].Host != "h1" || exhausted.Attempts[1].Host != "h2" {
		t.Errorf("Do() attempts == %+v", exhausted.Attempts)
	}

	// Nothing left
	_, err = f.Do(context.Background(), "AS-FOO", hosts.op)
	if !errors.Is(err, ErrNoHostsLeft) {
		t.Errorf("Do() error == %v, expected ErrNoHostsLeft", err)
	}
	if diff := helpers.Diff(hosts.queried, []string{"h1", "h2"}); diff != "" {
		t.Errorf("Do() queried hosts (-got, +want):\n%s", diff)
	}
}

func TestFailoverNotFound(t *testing.T) {
	r := reporter.NewMock(t)
	dead := NewDeadHosts(clock.NewMock(), 0)
	f := New[string](r, "irr", Configuration{Hosts: []string{"h1", "h2"}}, dead)
	hosts := &fakeHosts{behaviours: map[string]error{
		"h1": fmt.Errorf("AS-FOO: %w", enricher.ErrNotFound),
	}}

	_, err := f.Do(context.Background(), "AS-FOO", hosts.op)
	if !errors.Is(err, enricher.ErrNotFound) {
		t.Errorf("Do() error == %v, expected ErrNotFound", err)
	}
	if dead.IsDead("h1") {
		t.Error("IsDead(h1) == true, expected false")
	}
	if diff := helpers.Diff(hosts.queried, []string{"h1"}); diff != "" {
		t.Errorf("Do() queried hosts (-got, +want):\n%s", diff)
	}
}

func TestFailoverSharedDeadHosts(t *testing.T) {
	r := reporter.NewMock(t)
	dead := NewDeadHosts(clock.NewMock(), 0)
	hosts := &fakeHosts{behaviours: map[string]error{
		"h1": fmt.Errorf("boom: %w", enricher.ErrTransient),
	}}
	f1 := New[string](r, "as-sets", Configuration{Hosts: []string{"h1", "h2"}}, dead)
	f2 := New[string](r, "prefixes", Configuration{Hosts: []string{"h1", "h2"}}, dead)

	if _, err := f1.Do(context.Background(), "AS-FOO", hosts.op); err != nil {
		t.Fatalf("Do() error:\n%+v", err)
	}
	if _, err := f2.Do(context.Background(), "AS-FOO", hosts.op); err != nil {
		t.Fatalf("Do() error:\n%+v", err)
	}
	if diff := helpers.Diff(hosts.queried, []string{"h1", "h2", "h2"}); diff != "" {
		t.Errorf("Do() queried hosts (-got, +want):\n%s", diff)
	}
}

func TestDeadHostsReset(t *testing.T) {
	clk := clock.NewMock()
	dead := NewDeadHosts(clk, time.Hour)
	dead.MarkDead("h1")
	if !dead.IsDead("h1") {
		t.Fatal("IsDead(h1) == false, expected true")
	}
	clk.Add(30 * time.Minute)
	if !dead.IsDead("h1") {
		t.Fatal("IsDead(h1) == false after 30 minutes, expected true")
	}
	clk.Add(30 * time.Minute)
	if dead.IsDead("h1") {
		t.Fatal("IsDead(h1) == true after 1 hour, expected false")
	}
	if dead.Len() != 0 {
		t.Errorf("Len() == %d, expected 0", dead.Len())
	}

	forever := NewDeadHosts(clk, 0)
	forever.MarkDead("h1")
	clk.Add(24 * 365 * time.Hour)
	if !forever.IsDead("h1") {
		t.Error("IsDead(h1) == false, expected true without reset")
	}
}

func TestFailoverCanceledContext(t *testing.T) {
	r := reporter.NewMock(t)
	dead := NewDeadHosts(clock.NewMock(), 0)
	f := New[string](r, "irr", Configuration{Hosts: []string{"h1", "h2"}}, dead)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hosts := &fakeHosts{behaviours: map[string]error{"h1": context.DeadlineExceeded}}

	_, err := f.Do(ctx, "AS-FOO", hosts.op)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error == %v, expected context.Canceled", err)
	}
	if dead.IsDead("h1") {
		t.Error("IsDead(h1) == true, expected false")
	}
}
