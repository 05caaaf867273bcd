// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package daemon

import (
	"errors"
	"testing"
	"time"

	"gopkg.in/tomb.v2"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
)

func TestTerminate(t *testing.T) {
	r := reporter.NewMock(t)
	c, err := New(r)
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	helpers.StartStop(t, c)

	select {
	case <-c.Terminated():
		t.Fatalf("Terminated() was closed while we didn't request termination")
	default:
		// OK
	}

	c.Terminate()
	select {
	case _, ok := <-c.Terminated():
		if ok {
			t.Fatalf("Terminated() returned an unexpected value")
		}
		// OK
	default:
		t.Fatalf("Terminated() wasn't closed while we requested it to be")
	}

	c.Terminate() // Can be called several times.
}

func TestStop(t *testing.T) {
	r := reporter.NewMock(t)
	c, err := New(r)
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	c.Start()
	c.Stop()
	select {
	case <-c.Terminated():
	default:
		t.Fatalf("Terminated() wasn't closed while we requested it to be")
	}
}

func TestTombTracking(t *testing.T) {
	for _, tc := range []struct {
		description string
		err         error
	}{
		{"done", nil},
		{"failed", errors.New("build failed")},
	} {
		t.Run(tc.description, func(t *testing.T) {
			var tb tomb.Tomb
			r := reporter.NewMock(t)
			c, err := New(r)
			if err != nil {
				t.Fatalf("New() error:\n%+v", err)
			}
			c.Track(&tb, "tests/builder")
			helpers.StartStop(t, c)

			tb.Go(func() error {
				return tc.err
			})

			select {
			case <-c.Terminated():
			case <-time.After(time.Second):
				t.Fatal("Terminated() was not closed after the tracked tomb died")
			}
			if diff := helpers.Diff(tb.Wait(), tc.err); diff != "" {
				t.Fatalf("Wait() (-got, +want):\n%s", diff)
			}
		})
	}
}
