// SPDX-License-Identifier: Apache-2.0

package nfas

import (
	"github.com/tdmsip/gateway/internal/gwtimer"
	"github.com/tdmsip/gateway/internal/lapd"
)

// startHeartbeat arms the periodic RR(P=1) poll against the active member
// (spec §9 REDESIGN FLAGS: Q.921 poll in place of Q.931 STATUS ENQUIRY).
// Caller must hold g.mu.
func (g *Group) startHeartbeat() {
	if g.heartbeatCancel != nil || g.active < 0 {
		return
	}
	m := g.members[g.active]
	g.consecutiveHBFail = 0
	g.heartbeatCancel = gwtimer.Periodic(g.cfg.HeartbeatInterval, func() {
		g.runHeartbeatProbe(m)
	})
}

// stopHeartbeat disarms the poll timer. Caller must hold g.mu.
func (g *Group) stopHeartbeat() {
	if g.heartbeatCancel != nil {
		g.heartbeatCancel()
		g.heartbeatCancel = nil
	}
}

// runHeartbeatProbe fires on the timer goroutine, not the group's lock
// holder, so it takes g.mu itself for each step.
func (g *Group) runHeartbeatProbe(m *Member) {
	g.mu.Lock()
	if g.active < 0 || g.members[g.active] != m {
		g.mu.Unlock()
		return
	}
	g.counters.HeartbeatsSent++
	g.mu.Unlock()

	if m.Engine.StateSnapshot() != lapd.StateEstablished {
		g.recordHeartbeatFailure(m)
		return
	}
	m.Engine.Poll()
	g.recordHeartbeatSuccess()
}

func (g *Group) recordHeartbeatFailure(m *Member) {
	g.mu.Lock()
	g.counters.HeartbeatsLost++
	g.consecutiveHBFail++
	exceeded := g.consecutiveHBFail >= g.cfg.HeartbeatLossThreshold
	g.mu.Unlock()

	if exceeded {
		g.log.Warnw("heartbeat loss threshold exceeded", "span", m.SpanID, "losses", g.consecutiveHBFail)
		g.TriggerSwitchover(ReasonHeartbeatFailure, 0, nil)
	}
}

func (g *Group) recordHeartbeatSuccess() {
	g.mu.Lock()
	g.consecutiveHBFail = 0
	g.mu.Unlock()
}
