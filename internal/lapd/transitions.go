// SPDX-License-Identifier: Apache-2.0

package lapd

import "github.com/tdmsip/gateway/internal/frame"

func (e *Engine) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdStart:
		e.onStart()
	case cmdStop:
		e.onStop()
	case cmdSendI:
		e.onSendUserData(cmd.data)
	case cmdPoll:
		e.onPoll()
	}
}

func (e *Engine) onPoll() {
	if e.state != StateEstablished {
		return
	}
	e.sendRR(true)
}

func (e *Engine) onStart() {
	if e.state != StateDown {
		return
	}
	e.sendSABME()
	e.retryCount = 0
	e.t200.Start(e.cfg.T200)
	e.setState(StateAwaitingEstab)
	e.log.Infow("establishing link", "sapi", e.cfg.SAPI, "tei", e.cfg.TEI)
}

func (e *Engine) sendSABME() {
	e.send(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionSABME, PF: true}})
}

func (e *Engine) onStop() {
	switch e.state {
	case StateEstablished, StateAwaitingEstab:
		e.send(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionDISC, PF: true}})
		e.setState(StateReleasing)
	default:
		e.setState(StateDown)
	}
	e.t200.Stop()
	e.t203.Stop()
}

func (e *Engine) onSendUserData(payload []byte) {
	if e.state != StateEstablished {
		e.log.Debugw("dropping user data, link not established", "state", e.state)
		return
	}
	if e.peerBusy {
		e.log.Debugw("peer busy (RNR), holding frame", "vs", e.vs)
		e.pending = append(e.pending, payload)
		return
	}
	e.trySend(payload)
}

// trySend transmits payload as a new I-frame if the window allows it.
func (e *Engine) trySend(payload []byte) {
	if e.windowFull() {
		e.log.Debugw("tx window full, dropping frame", "vs", e.vs, "va", e.va, "k", e.cfg.K)
		return
	}
	ns := e.vs
	queueWasEmpty := len(e.txQueue) == 0
	e.txQueue = append(e.txQueue, queuedIFrame{ns: ns, payload: payload})
	e.transmitIFrame(ns, payload, false)
	e.vs = mod128(e.vs + 1)
	if queueWasEmpty {
		e.t200.Start(e.cfg.T200)
	}
}

// flushPending sends frames held back while the peer was busy, once RR
// clears the condition (spec §4.B: "resume when peer clears RNR").
func (e *Engine) flushPending() {
	for len(e.pending) > 0 && !e.windowFull() {
		payload := e.pending[0]
		e.pending = e.pending[1:]
		e.trySend(payload)
	}
}

// windowFull reports whether V(S)-V(A) mod 128 has reached the peer's
// acknowledgement window k (spec §4.B).
func (e *Engine) windowFull() bool {
	outstanding := mod128(e.vs - e.va)
	return int(outstanding) >= e.cfg.K
}

func (e *Engine) transmitIFrame(ns uint8, payload []byte, poll bool) {
	e.send(frame.Frame{
		Control:     frame.Control{Kind: frame.KindI, NS: ns, NR: e.vr, PF: poll},
		Information: payload,
	})
}

func (e *Engine) handleFrame(f frame.Frame) {
	switch f.Control.Kind {
	case frame.KindU:
		e.handleUFrame(f)
	case frame.KindI:
		e.handleIFrame(f)
	case frame.KindS:
		e.handleSFrame(f)
	}
}

func (e *Engine) handleUFrame(f frame.Frame) {
	switch f.Control.UFunction {
	case frame.UFunctionUA:
		e.handleUA(f)
	case frame.UFunctionDM:
		e.handleDM(f)
	case frame.UFunctionSABME:
		e.handleSABME(f)
	case frame.UFunctionDISC:
		e.handleDISC(f)
	case frame.UFunctionFRMR:
		e.handleFRMR(f)
	}
}

func (e *Engine) handleUA(f frame.Frame) {
	if e.state != StateAwaitingEstab {
		return
	}
	e.t200.Stop()
	e.vs, e.vr, e.va = 0, 0, 0
	e.retryCount = 0
	e.txQueue = nil
	e.t203.Start(e.cfg.T203)
	e.setState(StateEstablished)
	e.emit(Event{Kind: EventEstablished})
	e.log.Infow("link established", "sapi", e.cfg.SAPI, "tei", e.cfg.TEI)
}

func (e *Engine) handleDM(f frame.Frame) {
	if e.state != StateAwaitingEstab {
		return
	}
	e.retryEstablishOrFail()
}

func (e *Engine) retryEstablishOrFail() {
	e.retryCount++
	if e.retryCount < e.cfg.N200 {
		e.sendSABME()
		e.t200.Start(e.cfg.T200)
		return
	}
	e.t200.Stop()
	e.setState(StateDown)
	e.emit(Event{Kind: EventError, Error: ErrEstablishmentFailed})
	e.log.Warnw("establishment failed", "sapi", e.cfg.SAPI, "tei", e.cfg.TEI)
}

func (e *Engine) handleSABME(f frame.Frame) {
	// Peer wants to (re)establish: reset our counters and ack with UA,
	// regardless of our prior state, per Q.921.
	e.vs, e.vr, e.va = 0, 0, 0
	e.retryCount = 0
	e.txQueue = nil
	e.send(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionUA, PF: f.Control.PF}})
	wasEstablished := e.state == StateEstablished
	e.setState(StateEstablished)
	e.t200.Stop()
	e.t203.Start(e.cfg.T203)
	if !wasEstablished {
		e.emit(Event{Kind: EventEstablished})
	}
}

func (e *Engine) handleDISC(f frame.Frame) {
	e.send(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionUA, PF: f.Control.PF}})
	e.transitionDown(EventReleased, 0, false)
}

func (e *Engine) handleFRMR(f frame.Frame) {
	e.transitionDown(EventError, ErrPeerRejectedFRMR, true)
}

func (e *Engine) transitionDown(kind EventKind, errKind ErrorKind, withError bool) {
	e.t200.Stop()
	e.t203.Stop()
	e.setState(StateDown)
	var unacked [][]byte
	for _, qf := range e.txQueue {
		unacked = append(unacked, qf.payload)
	}
	e.txQueue = nil
	if withError {
		e.emit(Event{Kind: kind, Error: errKind, Unacked: unacked})
	} else {
		e.emit(Event{Kind: kind, Unacked: unacked})
	}
}

func (e *Engine) handleIFrame(f frame.Frame) {
	if e.state != StateEstablished {
		return
	}
	e.processAck(f.Control.NR)

	if f.Control.NS == e.vr {
		e.vr = mod128(e.vr + 1)
		e.emit(Event{Kind: EventData, Data: f.Information})
		e.sendRR(f.Control.PF)
	} else {
		e.sendREJ()
	}
}

func (e *Engine) sendRR(poll bool) {
	e.send(frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionRR, NR: e.vr, PF: poll}})
}

func (e *Engine) sendREJ() {
	e.send(frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionREJ, NR: e.vr}})
}

func (e *Engine) handleSFrame(f frame.Frame) {
	if e.state != StateEstablished {
		return
	}
	switch f.Control.SFunction {
	case frame.SFunctionRR:
		e.peerBusy = false
		e.processAck(f.Control.NR)
		e.flushPending()
		if f.Control.PF {
			e.sendRR(false)
		}
	case frame.SFunctionRNR:
		e.peerBusy = true
		e.processAck(f.Control.NR)
	case frame.SFunctionREJ:
		e.peerBusy = false
		e.processAck(f.Control.NR)
		e.retransmitFrom(f.Control.NR)
		e.flushPending()
	}
}

// processAck advances V(A) to nr and drops now-acknowledged frames from the
// retransmit queue (spec invariant 1: the queue holds exactly [V(A), V(S))).
func (e *Engine) processAck(nr uint8) {
	if nr != e.vs && !seqInWindow(nr, e.va, e.vs) {
		return
	}
	e.va = nr
	kept := make([]queuedIFrame, 0, len(e.txQueue))
	for _, qf := range e.txQueue {
		if seqInWindow(qf.ns, e.va, e.vs) {
			kept = append(kept, qf)
		}
	}
	e.txQueue = kept

	if len(e.txQueue) == 0 {
		e.t200.Stop()
	} else {
		e.t200.Start(e.cfg.T200)
	}
}

// seqInWindow reports whether seq lies in [lo, hi) under mod-128 arithmetic.
func seqInWindow(seq, lo, hi uint8) bool {
	span := mod128(hi - lo)
	offset := mod128(seq - lo)
	return offset < span
}

func (e *Engine) retransmitFrom(nr uint8) {
	for _, qf := range e.txQueue {
		if qf.ns == nr || seqInWindow(qf.ns, nr, e.vs) {
			e.transmitIFrame(qf.ns, qf.payload, false)
		}
	}
	if len(e.txQueue) > 0 {
		e.t200.Start(e.cfg.T200)
	}
}

func (e *Engine) handleT200Expiry() {
	switch e.state {
	case StateAwaitingEstab:
		e.retryEstablishOrFail()
	case StateEstablished:
		if len(e.txQueue) == 0 {
			return
		}
		e.retryCount++
		if e.retryCount >= e.cfg.N200 {
			e.transitionDown(EventError, ErrLinkLost, true)
			e.log.Warnw("link lost, retransmission limit exceeded", "sapi", e.cfg.SAPI, "tei", e.cfg.TEI)
			return
		}
		oldest := e.txQueue[0]
		e.transmitIFrame(oldest.ns, oldest.payload, false)
		e.t200.Start(e.cfg.T200)
	}
}

func (e *Engine) handleT203Expiry() {
	if e.state != StateEstablished {
		return
	}
	e.sendRR(true)
	e.t203.Start(e.cfg.T203)
}

func mod128(v uint8) uint8 {
	return v & 0x7F
}
