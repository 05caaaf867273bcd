// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package reporter_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
)

func TestMetrics(t *testing.T) {
	r := reporter.NewMock(t)

	counter1 := r.Counter(reporter.CounterOpts{
		Name: "counter1",
		Help: "Some counter",
	})
	counter1.Add(18)

	counter2 := r.CounterVec(reporter.CounterOpts{
		Name: "counter2",
		Help: "Another counter",
	}, []string{"label1", "label2"})
	counter2.WithLabelValues("value1", "value2").Add(42)
	counter2.WithLabelValues("value3 space", "value4").Add(167)

	gauge1 := r.Gauge(reporter.GaugeOpts{
		Name: "gauge1",
		Help: "Some gauge",
	})
	gauge1.Set(1717)

	r.GaugeFunc(reporter.GaugeOpts{
		Name: "gauge2",
		Help: "Another gauge",
	}, func() float64 { return 77 })

	// Duplicate registration returns the existing collector
	r.Counter(reporter.CounterOpts{
		Name: "counter1",
		Help: "Some counter",
	}).Inc()

	gotMetrics := r.GetMetrics("rsbuilder_common_reporter_test_")
	expectedMetrics := map[string]string{
		`counter1`: "19",
		`counter2{label1="value1",label2="value2"}`:       "42",
		`counter2{label1="value3 space",label2="value4"}`: "167",
		`gauge1`: "1717",
		`gauge2`: "77",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}

	gotMetrics = r.GetMetrics("rsbuilder_common_reporter_test_", "gauge")
	expectedMetrics = map[string]string{
		`gauge1`: "1717",
		`gauge2`: "77",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestWriteMetrics(t *testing.T) {
	r := reporter.NewMock(t)
	r.Counter(reporter.CounterOpts{
		Name: "written_total",
		Help: "Some counter",
	}).Add(3)

	filename := filepath.Join(t.TempDir(), "rsbuilder.prom")
	if err := r.WriteMetrics(filename); err != nil {
		t.Fatalf("WriteMetrics() error:\n%+v", err)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("ReadFile() error:\n%+v", err)
	}
	if !strings.Contains(string(content), "rsbuilder_common_reporter_test_written_total 3\n") {
		t.Fatalf("WriteMetrics() did not write the counter:\n%s", content)
	}
}
