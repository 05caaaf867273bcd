// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package pool

import "time"

// Configuration describes the configuration of a worker pool.
type Configuration struct {
	// Workers is the number of tasks executed concurrently.
	Workers int `validate:"min=1"`
	// MonitorInterval is the interval between two progress reports.
	MonitorInterval time.Duration `validate:"min=1s"`
}

// DefaultConfiguration represents the default configuration for a worker pool.
func DefaultConfiguration() Configuration {
	return Configuration{
		Workers:         4,
		MonitorInterval: 30 * time.Second,
	}
}
