// SPDX-License-Identifier: Apache-2.0

package callctrl

import (
	"time"

	"github.com/tdmsip/gateway/internal/gwtimer"
)

// TimerKind identifies one of the five Q.931 call timers plus T302 (overlap
// sending-complete guard, spec §4.G edge case).
type TimerKind int

const (
	TimerT301 TimerKind = iota // alerting, >= 180s
	TimerT302                  // overlap sending guard
	TimerT303                  // SETUP ack, 4s
	TimerT305                  // DISCONNECT ack, 30s
	TimerT308                  // RELEASE ack, 4s, one retry
	TimerT310                  // CALL PROCEEDING -> next, 10s
)

func (k TimerKind) String() string {
	switch k {
	case TimerT301:
		return "T301"
	case TimerT302:
		return "T302"
	case TimerT303:
		return "T303"
	case TimerT305:
		return "T305"
	case TimerT308:
		return "T308"
	case TimerT310:
		return "T310"
	default:
		return "unknown"
	}
}

// Default durations per spec §4.D.
const (
	DefaultT301 = 180 * time.Second
	DefaultT302 = 10 * time.Second
	DefaultT303 = 4 * time.Second
	DefaultT305 = 30 * time.Second
	DefaultT308 = 4 * time.Second
	DefaultT310 = 10 * time.Second
)

func defaultDuration(k TimerKind) time.Duration {
	switch k {
	case TimerT301:
		return DefaultT301
	case TimerT302:
		return DefaultT302
	case TimerT303:
		return DefaultT303
	case TimerT305:
		return DefaultT305
	case TimerT308:
		return DefaultT308
	case TimerT310:
		return DefaultT310
	default:
		return 0
	}
}

// timerSet owns one gwtimer.Timer per TimerKind for a single call, all
// firing onto the same fan-in channel so the manager's run loop can treat
// timer expiry like any other message (spec §5).
type timerSet struct {
	call        *Call
	timers      map[TimerKind]*gwtimer.Timer
	fanIn       chan TimerKind
	done        chan struct{}
	t308Retries int
}

func newTimerSet(c *Call) *timerSet {
	ts := &timerSet{
		call:   c,
		timers: make(map[TimerKind]*gwtimer.Timer),
		fanIn:  make(chan TimerKind, 8),
		done:   make(chan struct{}),
	}
	for _, k := range []TimerKind{TimerT301, TimerT302, TimerT303, TimerT305, TimerT308, TimerT310} {
		k := k
		fire := make(chan struct{}, 1)
		ts.timers[k] = gwtimer.New(fire)
		go func() {
			for {
				select {
				case <-ts.done:
					return
				case <-fire:
					select {
					case ts.fanIn <- k:
					case <-ts.done:
						return
					}
				}
			}
		}()
	}
	return ts
}

func (ts *timerSet) start(k TimerKind, d time.Duration) {
	if d == 0 {
		d = defaultDuration(k)
	}
	ts.timers[k].Start(d)
}

func (ts *timerSet) stop(k TimerKind) {
	ts.timers[k].Stop()
}

func (ts *timerSet) stopAll() {
	for _, t := range ts.timers {
		t.Stop()
	}
	select {
	case <-ts.done:
	default:
		close(ts.done)
	}
}
