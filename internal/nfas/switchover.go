// SPDX-License-Identifier: Apache-2.0

package nfas

import (
	"fmt"
	"time"

	"github.com/tdmsip/gateway/internal/lapd"
	"github.com/tdmsip/gateway/internal/util"
)

// TriggerSwitchover moves the group off its current active member and onto
// the next healthy candidate (spec §4.F). A single-member group has no
// candidate to fail over to and instead goes Inactive (spec §8 boundary
// behaviour). attempt counts recursive retries against MaxSwitchoverAttempts;
// replay carries payloads the failed engine never got acknowledged, to be
// resent on whichever candidate activates ahead of anything already queued.
func (g *Group) TriggerSwitchover(reason Reason, attempt int, replay [][]byte) {
	g.mu.Lock()
	if g.state == StateSwitching {
		g.mu.Unlock()
		return
	}
	if len(g.members) <= 1 {
		g.state = StateInactive
		g.stopHeartbeat()
		from := g.activeSpanIDLocked()
		g.active = -1
		g.mu.Unlock()
		g.emitEvent(Event{Kind: EventGroupInactive, From: from, Reason: reason})
		return
	}

	failedIdx := g.active
	// Every round gets a clean slate: a candidate that failed to establish
	// in a prior round (e.g. a transient SwitchoverTimeout) may succeed in
	// this one. Only the member that just went down stays marked failed.
	for _, m := range g.members {
		m.failed = false
	}
	if failedIdx >= 0 {
		g.members[failedIdx].failed = true
	}
	g.state = StateSwitching
	g.stopHeartbeat()
	fromSpanID := g.activeSpanIDLocked()
	g.mu.Unlock()

	g.log.Warnw("switchover triggered", "reason", reason, "attempt", attempt)

	order := []int{g.primaryIndex()}
	for i := range g.members {
		if i != order[0] {
			order = append(order, i)
		}
	}
	for _, candidate := range order {
		g.mu.Lock()
		m := g.members[candidate]
		skip := candidate == failedIdx || m.failed
		g.mu.Unlock()
		if skip {
			continue
		}

		if g.activateCandidate(m) {
			g.mu.Lock()
			g.active = candidate
			g.state = StateActive
			g.counters.Switchovers++
			g.counters.LastSwitchoverAt = time.Now()
			g.startHeartbeat()
			for _, payload := range replay {
				m.Engine.SendUserData(payload)
			}
			g.flushQueue()
			g.mu.Unlock()

			go func() {
				defer util.RecoverWithLog(g.log, fmt.Sprintf("nfas group %d watch member %d", g.ID, m.SpanID))
				g.watchMember(m)
			}()

			g.emitEvent(Event{Kind: EventSwitchoverCompleted, From: fromSpanID, To: m.SpanID, Reason: reason})
			return
		}

		g.mu.Lock()
		m.failed = true
		g.mu.Unlock()
	}

	if attempt+1 < g.cfg.MaxSwitchoverAttempts {
		g.mu.Lock()
		g.state = StateInactive
		g.mu.Unlock()
		g.TriggerSwitchover(reason, attempt+1, replay)
		return
	}

	g.mu.Lock()
	g.state = StateInactive
	g.active = -1
	g.mu.Unlock()
	g.emitEvent(Event{Kind: EventGroupInactive, From: fromSpanID, Reason: reason})
}

// activateCandidate starts m's engine and waits up to SwitchoverTimeout for
// it to report Established. It consumes m's Events channel directly during
// the wait; watchMember takes over consumption once this returns true.
func (g *Group) activateCandidate(m *Member) bool {
	m.Engine.Start()
	deadline := time.After(g.cfg.SwitchoverTimeout)
	for {
		select {
		case ev := <-m.Engine.Events():
			switch ev.Kind {
			case lapd.EventEstablished:
				return true
			case lapd.EventError:
				return false
			}
		case <-deadline:
			m.Engine.Stop()
			return false
		}
	}
}

// activeSpanIDLocked returns the active member's span id, or 0 if none.
// Caller must hold g.mu.
func (g *Group) activeSpanIDLocked() int {
	if g.active < 0 {
		return 0
	}
	return g.members[g.active].SpanID
}

func (g *Group) emitEvent(ev Event) {
	select {
	case g.Events <- ev:
	default:
		g.log.Warnw("nfas event channel full, dropping event", "kind", ev.Kind)
	}
}
