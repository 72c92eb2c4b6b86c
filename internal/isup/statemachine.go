// SPDX-License-Identifier: Apache-2.0

package isup

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdmsip/gateway/logger"
)

// CallState is a per-CIC call state (spec §4.E).
type CallState int

const (
	StateIdle CallState = iota
	StateOutgoingSetup
	StateIncomingSetup
	StateCallProgress
	StateAnswered
	StateReleasing
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOutgoingSetup:
		return "OutgoingSetup"
	case StateIncomingSetup:
		return "IncomingSetup"
	case StateCallProgress:
		return "CallProgress"
	case StateAnswered:
		return "Answered"
	case StateReleasing:
		return "Releasing"
	default:
		return "unknown"
	}
}

// Call is one ISUP call bound to a CIC (spec §3 "Call (ISUP)").
type Call struct {
	CIC       int
	Direction Direction
	State     CallState
	Calling   string
	Called    string
	StartTime time.Time
	SipCallID string
}

// UnknownMessageEvent is surfaced when Handler.Handle receives a message
// type it doesn't recognize; per spec §4.E this never affects per-CIC state.
type UnknownMessageEvent struct {
	CIC  int
	Type MessageType
}

// Handler owns the CIC pool and every active per-CIC call on one SIGTRAN
// association (spec §4.E, §5 "single-writer").
type Handler struct {
	mu    sync.Mutex
	pool  *CicPool
	calls map[int]*Call
	log   *zap.SugaredLogger

	Unknown chan UnknownMessageEvent
}

func NewHandler(pool *CicPool, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = logger.IsupLog
	}
	return &Handler{pool: pool, calls: make(map[int]*Call), log: log, Unknown: make(chan UnknownMessageEvent, 32)}
}

// StartOutgoing allocates a CIC and begins an outgoing call by sending an
// IAM (the caller builds and sends the actual IAM message; this just
// reserves the resource and creates the call record).
func (h *Handler) StartOutgoing(calling, called string) (*Call, error) {
	cic, err := h.pool.Allocate()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Call{CIC: cic, Direction: DirectionOutgoing, State: StateOutgoingSetup, Calling: calling, Called: called, StartTime: time.Now()}
	h.calls[cic] = c
	return c, nil
}

// Handle processes one inbound ISUP message and returns the affected Call
// (nil for CFN-worthy unknown types) and an error.
func (h *Handler) Handle(msg Message) (*Call, error) {
	cic := int(msg.CIC)

	switch msg.Type {
	case MsgIAM:
		return h.onIAM(cic, msg)
	case MsgACM:
		return h.transition(cic, StateCallProgress, StateOutgoingSetup)
	case MsgANM:
		return h.transition(cic, StateAnswered, StateOutgoingSetup, StateCallProgress, StateIncomingSetup)
	case MsgREL:
		return h.onREL(cic, msg)
	case MsgRLC:
		return h.onRLC(cic)
	default:
		select {
		case h.Unknown <- UnknownMessageEvent{CIC: cic, Type: msg.Type}:
		default:
		}
		return nil, nil
	}
}

func (h *Handler) onIAM(cic int, msg Message) (*Call, error) {
	if err := h.pool.AllocateSpecific(cic); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Call{CIC: cic, Direction: DirectionIncoming, State: StateIncomingSetup, StartTime: time.Now()}
	h.calls[cic] = c
	return c, nil
}

func (h *Handler) transition(cic int, next CallState, from ...CallState) (*Call, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.calls[cic]
	if !ok {
		return nil, &CodecError{"message for unknown CIC"}
	}
	if len(from) > 0 && !stateIn(c.State, from) {
		h.log.Warnw("unexpected state transition", "cic", cic, "state", c.State, "next", next)
	}
	c.State = next
	return c, nil
}

func stateIn(s CallState, set []CallState) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func (h *Handler) onREL(cic int, msg Message) (*Call, error) {
	h.mu.Lock()
	c, ok := h.calls[cic]
	h.mu.Unlock()
	if !ok {
		return nil, &CodecError{"REL for unknown CIC"}
	}
	h.mu.Lock()
	c.State = StateReleasing
	h.mu.Unlock()
	return c, nil
}

// onRLC completes the release: returns the CIC to the pool (spec §4.E
// "Releasing -> Idle (on RLC)").
func (h *Handler) onRLC(cic int) (*Call, error) {
	h.mu.Lock()
	c, ok := h.calls[cic]
	if ok {
		delete(h.calls, cic)
	}
	h.mu.Unlock()
	if !ok {
		return nil, &CodecError{"RLC for unknown CIC"}
	}
	c.State = StateIdle
	h.pool.Release(cic)
	return c, nil
}

// Lookup returns the call currently owning cic, if any.
func (h *Handler) Lookup(cic int) (*Call, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.calls[cic]
	return c, ok
}
