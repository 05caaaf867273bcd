// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package failover

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DeadHosts is the set of hosts known to have failed. It is shared by
// all the resolvers of a process. Once dead, a host stays dead, unless
// resetAfter is positive: the host is then used again once this duration
// has elapsed.
type DeadHosts struct {
	clock      clock.Clock
	resetAfter time.Duration

	lock sync.Mutex
	dead map[string]time.Time
}

// NewDeadHosts creates an empty set of dead hosts.
func NewDeadHosts(clk clock.Clock, resetAfter time.Duration) *DeadHosts {
	if clk == nil {
		clk = clock.New()
	}
	return &DeadHosts{
		clock:      clk,
		resetAfter: resetAfter,
		dead:       map[string]time.Time{},
	}
}

// IsDead tells if the host is known to be dead.
func (d *DeadHosts) IsDead(host string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	since, ok := d.dead[host]
	if !ok {
		return false
	}
	if d.resetAfter > 0 && d.clock.Since(since) >= d.resetAfter {
		delete(d.dead, host)
		return false
	}
	return true
}

// MarkDead records the host as dead.
func (d *DeadHosts) MarkDead(host string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.dead[host] = d.clock.Now()
}

// Len returns the number of hosts currently recorded as dead.
func (d *DeadHosts) Len() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return len(d.dead)
}
