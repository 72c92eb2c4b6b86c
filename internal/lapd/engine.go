// SPDX-License-Identifier: Apache-2.0

package lapd

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/frame"
	"github.com/tdmsip/gateway/internal/gwtimer"
	"github.com/tdmsip/gateway/internal/util"
	"github.com/tdmsip/gateway/logger"
)

const (
	DefaultT200 = 1000 * time.Millisecond
	DefaultT203 = 10000 * time.Millisecond
	DefaultN200 = 3
	DefaultK    = 7 // ack window, spec §4.B
)

// Transport is the downstream collaborator an Engine sends encoded octets
// to. Implementations live in internal/tdm; the engine never touches a
// socket or hardware register directly (spec §1 "physical TDM hardware
// access" is a collaborator concern).
type Transport interface {
	Send(octets []byte) error
}

// Config parameterizes one Engine instance.
type Config struct {
	SAPI  uint8
	TEI   uint8
	CES   uint8
	Role  Role
	N201  int
	T200  time.Duration
	T203  time.Duration
	N200  int
	K     int
	Trans Transport
}

func (c *Config) fillDefaults() {
	if c.N201 == 0 {
		c.N201 = frame.DefaultN201
	}
	if c.T200 == 0 {
		c.T200 = DefaultT200
	}
	if c.T203 == 0 {
		c.T203 = DefaultT203
	}
	if c.N200 == 0 {
		c.N200 = DefaultN200
	}
	if c.K == 0 {
		c.K = DefaultK
	}
}

type command struct {
	kind commandKind
	data []byte // payload for cmdSendI
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSendI
	cmdRawFrame // a decoded frame arriving from the TDM side
	cmdPoll     // send a supervisory RR(P=1) poll out of band
)

type rawFrameCmd struct {
	f frame.Frame
}

// Engine owns exactly one data-link endpoint (spec §3 "Data-link endpoint").
// It is single-task: all state is touched only from its run loop goroutine.
type Engine struct {
	cfg Config
	log *zap.SugaredLogger

	state      State
	stateAtomic atomic.Int32 // mirrors state for cross-goroutine reads

	vs, vr, va uint8 // V(S), V(R), V(A), mod 128
	peerBusy   bool  // RNR received from peer
	ownBusy    bool  // we sent RNR to peer (not modelled beyond the flag)

	retryCount int

	txQueue []queuedIFrame // unacknowledged I-frames, ordered by N(S)
	pending [][]byte       // new user data held back while peerBusy (spec §4.B)

	t200 *gwtimer.Timer
	t203 *gwtimer.Timer
	t200Fire chan struct{}
	t203Fire chan struct{}

	cmds   chan command
	frames chan frame.Frame
	events chan Event
	done   chan struct{}
}

type queuedIFrame struct {
	ns      uint8
	payload []byte
}

// New builds an Engine in state DOWN. Call Run in its own goroutine, then
// Start to begin link establishment.
func New(cfg Config, log *zap.SugaredLogger) *Engine {
	cfg.fillDefaults()
	if log == nil {
		log = logger.LapdLog
	}
	e := &Engine{
		cfg:      cfg,
		log:      log,
		state:    StateDown,
		t200Fire: make(chan struct{}, 1),
		t203Fire: make(chan struct{}, 1),
		cmds:     make(chan command, 16),
		frames:   make(chan frame.Frame, 32),
		events:   make(chan Event, 32),
		done:     make(chan struct{}),
	}
	e.t200 = gwtimer.New(e.t200Fire)
	e.t203 = gwtimer.New(e.t203Fire)
	return e
}

// Events returns the channel the owner reads Established/Released/Error/Data
// events from.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the engine's current state. Only safe to call from the
// run-loop goroutine itself (e.g. from within a test that single-steps the
// loop). Cross-goroutine callers (NFAS group, supervisors) must use
// StateSnapshot instead.
func (e *Engine) State() State { return e.state }

// StateSnapshot atomically reads the engine's state from any goroutine.
func (e *Engine) StateSnapshot() State { return State(e.stateAtomic.Load()) }

func (e *Engine) setState(s State) {
	e.state = s
	e.stateAtomic.Store(int32(s))
}

// Start requests the engine begin establishing the link (send SABME).
func (e *Engine) Start() { e.cmds <- command{kind: cmdStart} }

// Stop requests the engine tear the link down (send DISC). The run loop keeps
// running; only Close ends it.
func (e *Engine) Stop() { e.cmds <- command{kind: cmdStop} }

// SendUserData queues payload for transmission as an I-frame.
func (e *Engine) SendUserData(payload []byte) { e.cmds <- command{kind: cmdSendI, data: payload} }

// Poll sends an out-of-band RR(P=1) supervisory poll, used by the NFAS
// heartbeat (spec §9 REDESIGN FLAGS: prefer Q.921 RR(P=1) over Q.931 STATUS
// ENQUIRY for link-health monitoring). Only effective when Established.
func (e *Engine) Poll() { e.cmds <- command{kind: cmdPoll} }

// Receive delivers a raw octet stream received from the TDM side. Decode
// failures are logged and dropped per spec §7 (framing errors never tear
// down the link).
func (e *Engine) Receive(octets []byte) {
	f, err := frame.Decode(octets, e.cfg.N201)
	if err != nil {
		e.log.Debugw("frame decode error, dropping", "error", err)
		return
	}
	e.frames <- f
}

// Run is the engine's single-task run loop. It must run in its own
// goroutine and processes frames, commands, and timer firings strictly in
// arrival order (spec §5 ordering guarantees).
func (e *Engine) Run() {
	defer util.RecoverWithLog(e.log, fmt.Sprintf("lapd engine sapi=%d tei=%d run loop", e.cfg.SAPI, e.cfg.TEI))
	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		case f := <-e.frames:
			e.handleFrame(f)
		case <-e.t200Fire:
			e.handleT200Expiry()
		case <-e.t203Fire:
			e.handleT203Expiry()
		}
	}
}

// Close stops the run loop. Distinct from Stop: Close is used when the
// owner is tearing down the engine entirely (e.g. NFAS group shutdown)
// rather than gracefully releasing the link.
func (e *Engine) Close() {
	close(e.done)
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warnw("event channel full, dropping event", "kind", ev.Kind)
	}
}

func (e *Engine) send(f frame.Frame) {
	f.Address = frame.Address{SAPI: e.cfg.SAPI, TEI: e.cfg.TEI, CR: true}
	wire, err := frame.Encode(f)
	if err != nil {
		e.log.Errorw("encode failed", "error", err)
		return
	}
	if err := e.cfg.Trans.Send(wire); err != nil {
		e.log.Warnw("transport send failed", "error", err)
	}
}
