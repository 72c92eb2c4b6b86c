// SPDX-License-Identifier: Apache-2.0

package callctrl

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/q931"
	"github.com/tdmsip/gateway/logger"
)

// Call is one Q.931 call (spec §3 "Call (Q.931)").
type Call struct {
	CallRef      q931.CallReference
	Originating  bool
	State        State
	Calling      string
	Called       string
	Bearer       []byte
	Channel      int
	SipCallID    string // nullable: empty means not yet correlated
	LastCause    uint8

	overlapDigits string

	timers *timerSet
	log    *zap.SugaredLogger
}

func newCall(cr q931.CallReference, originating bool, log *zap.SugaredLogger) *Call {
	if log == nil {
		log = logger.CallCtrlLog
	}
	c := &Call{CallRef: cr, Originating: originating, State: StateNull, log: log}
	c.timers = newTimerSet(c)
	return c
}

func callRefKey(cr q931.CallReference) string {
	return fmt.Sprintf("%x", cr.Value)
}

// Manager owns every active call on one D-channel endpoint. It is a
// single-writer structure (spec §5): all mutation happens from the owning
// task; the map itself needs no lock beyond that discipline, but we still
// guard it because a translator or NFAS task may need a read-only lookup
// (e.g. for logging) from another goroutine.
type Manager struct {
	mu    sync.Mutex
	calls map[string]*Call
	log   *zap.SugaredLogger

	// Timers is the shared cooperative timer sink: TimerFired events for
	// every call flow through here so the owning task's select loop can
	// process them like any other message (spec §5).
	TimerFired chan TimerEvent
}

// TimerEvent is delivered when a call's timer expires.
type TimerEvent struct {
	CallRefKey string
	Kind       TimerKind
}

func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = logger.CallCtrlLog
	}
	return &Manager{
		calls:      make(map[string]*Call),
		log:        log,
		TimerFired: make(chan TimerEvent, 64),
	}
}

// CallError is a typed call-layer failure (spec §7 "Call" error kind).
type CallError struct {
	Kind CallErrorKind
	Msg  string
}

func (e *CallError) Error() string { return e.Msg }

type CallErrorKind int

const (
	ErrCallRefCollision CallErrorKind = iota
	ErrGlare
	ErrNoChannelAvailable
	ErrTimerExpiry
)

// NewOutgoingCall creates and registers a call for local origination. It
// fails with ErrCallRefCollision if the reference is already in use (spec
// invariant 2: at most one active SM per call reference per D-channel).
func (m *Manager) NewOutgoingCall(cr q931.CallReference) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := callRefKey(cr)
	if _, exists := m.calls[key]; exists {
		return nil, &CallError{ErrCallRefCollision, "call reference already active"}
	}
	c := newCall(cr, true, m.log)
	c.State = StateCallInitiated
	m.calls[key] = c
	return c, nil
}

// AdmitIncomingCall registers a call arriving via inbound SETUP. If the
// reference collides with an in-progress call, the caller (per spec §4.D
// tie-break) must reject the new SETUP with RELEASE COMPLETE cause 81
// rather than accept it; this method reports that condition instead of
// silently overwriting state.
func (m *Manager) AdmitIncomingCall(cr q931.CallReference) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := callRefKey(cr)
	if _, exists := m.calls[key]; exists {
		return nil, &CallError{ErrCallRefCollision, "call reference collision on inbound SETUP"}
	}
	c := newCall(cr, false, m.log)
	c.State = StateCallPresent
	m.calls[key] = c
	return c, nil
}

func (m *Manager) Lookup(cr q931.CallReference) (*Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callRefKey(cr)]
	return c, ok
}

// Free removes a call, cancelling its timers (spec §5 "dropping a call
// reference implicitly cancels its timers").
func (m *Manager) Free(cr q931.CallReference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := callRefKey(cr)
	if c, ok := m.calls[key]; ok {
		c.timers.stopAll()
		delete(m.calls, key)
	}
}

// Count returns the number of active calls, used by NFAS group bookkeeping.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
