// SPDX-License-Identifier: Apache-2.0

// Package gwtimer is the single timer abstraction used by every stateful
// component (LAPD T200/T203, Call-Control T301/T303/T305/T308/T310, NFAS
// heartbeat); the NFAS switchover timeout uses time.After instead. Per spec §5, timer firings must be
// delivered as ordinary messages on the owning task's queue rather than
// preempting it, so a Timer never calls back directly: it sends a value on
// the channel supplied at construction and the owner's run loop picks it up
// alongside frame/command messages via select.
package gwtimer

import (
	"sync"
	"time"
)

// Timer is a cancelable, restartable one-shot alarm that delivers onto a
// caller-owned channel instead of invoking a callback, so firings interleave
// with other messages on the owner's select loop.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	fire    chan<- struct{}
	running bool
}

// New creates a Timer that will send an empty struct on fire when it expires.
// The channel should be buffered (capacity 1) so a fire is never lost if the
// owner is briefly busy.
func New(fire chan<- struct{}) *Timer {
	return &Timer{fire: fire}
}

// Start arms the timer for d. Starting an already-running timer stops the
// old one first.
func (tm *Timer) Start(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.running = true
	tm.t = time.AfterFunc(d, func() {
		tm.mu.Lock()
		still := tm.running
		tm.mu.Unlock()
		if !still {
			return
		}
		select {
		case tm.fire <- struct{}{}:
		default:
		}
	})
}

// Stop disarms the timer. Safe to call on an already-stopped timer.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.running = false
	if tm.t != nil {
		tm.t.Stop()
	}
}

// Reset restarts the timer for d, equivalent to Stop followed by Start.
func (tm *Timer) Reset(d time.Duration) {
	tm.Start(d)
}

// Periodic runs fn every d until the returned cancel func is called, used by
// the NFAS heartbeat loop. Grounded on the teacher's NewDPDPeriodicTimer.
func Periodic(d time.Duration, fn func()) (cancel func()) {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
