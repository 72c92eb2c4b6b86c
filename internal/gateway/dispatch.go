// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tdmsip/gateway/internal/callctrl"
	"github.com/tdmsip/gateway/internal/isup"
	"github.com/tdmsip/gateway/internal/lapd"
	"github.com/tdmsip/gateway/internal/nfas"
	"github.com/tdmsip/gateway/internal/q931"
	"github.com/tdmsip/gateway/internal/registry"
	"github.com/tdmsip/gateway/internal/sip"
	"github.com/tdmsip/gateway/internal/translate"
	"github.com/tdmsip/gateway/internal/util"
	"github.com/tdmsip/gateway/logger"
)

// dchannel is one D-channel's call-control scope: a callctrl.Manager plus
// the session state (component G/H bookkeeping) belonging only to calls on
// that D-channel. Every method that touches sessions or manager runs on
// dc's own goroutine (runChannel), so neither needs a lock (spec §5
// single-writer discipline, same as callctrl.Manager itself).
type dchannel struct {
	label    string // "span" or "nfas-group", for logging
	id       int
	manager  *callctrl.Manager
	send     func([]byte)
	dataCh   chan []byte
	sipIn    chan sipDelivery
	sessions map[string]*translate.TranslationContext // keyed by q931SessionKey
}

type sipDelivery struct {
	rec *registry.SessionRecord
	msg sip.Message
}

func q931SessionKey(cr q931.CallReference) string {
	return fmt.Sprintf("%x", cr.Value)
}

// buildChannels creates one dchannel per standalone span and per NFAS
// group (spec §4.D: "at most one active state machine per call reference
// per D-channel" -- a group's members share a single logical D-channel and
// so share a single Manager).
func (g *Gateway) buildChannels() {
	for id, e := range g.Spans {
		if isMemberOfAnyGroup(id, g.NfasGroups) {
			continue
		}
		e := e
		g.channels = append(g.channels, &dchannel{
			label:    "span",
			id:       id,
			manager:  callctrl.NewManager(nil),
			send:     e.SendUserData,
			dataCh:   make(chan []byte, 32),
			sipIn:    make(chan sipDelivery, 32),
			sessions: make(map[string]*translate.TranslationContext),
		})
	}
	for id, grp := range g.NfasGroups {
		grp := grp
		g.channels = append(g.channels, &dchannel{
			label:    "nfas-group",
			id:       id,
			manager:  callctrl.NewManager(nil),
			send:     grp.SendUpstream,
			dataCh:   make(chan []byte, 32),
			sipIn:    make(chan sipDelivery, 32),
			sessions: make(map[string]*translate.TranslationContext),
		})
	}
}

// startDispatch launches, per D-channel, an event bridge (translating the
// span's or group's own Event shape into a plain []byte), the channel's
// run loop, and its timer-expiry drain. It is the dispatcher spec §2 names:
// LAPD/NFAS EventData -> q931.Decode -> callctrl -> translate -> sip.Transport.
func (g *Gateway) startDispatch() {
	for _, dc := range g.channels {
		dc := dc
		switch dc.label {
		case "span":
			e := g.Spans[dc.id]
			g.wg.Add(1)
			go func() {
				defer g.wg.Done()
				defer util.RecoverWithLog(logger.GatewayLog, fmt.Sprintf("span %d event bridge", dc.id))
				for ev := range e.Events() {
					if ev.Kind == lapd.EventData {
						g.feed(dc, ev.Data)
					}
				}
			}()
		case "nfas-group":
			grp := g.NfasGroups[dc.id]
			g.wg.Add(1)
			go func() {
				defer g.wg.Done()
				defer util.RecoverWithLog(logger.GatewayLog, fmt.Sprintf("nfas group %d event bridge", dc.id))
				for ev := range grp.Events {
					if ev.Kind == nfas.EventUpstreamData {
						g.feed(dc, ev.Data)
					}
				}
			}()
		}

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer util.RecoverWithLog(logger.GatewayLog, fmt.Sprintf("%s %d dispatch loop", dc.label, dc.id))
			g.runChannel(dc)
		}()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer util.RecoverWithLog(logger.GatewayLog, fmt.Sprintf("%s %d timer watch", dc.label, dc.id))
			g.watchTimers(dc)
		}()
	}
}

func (g *Gateway) feed(dc *dchannel, data []byte) {
	select {
	case dc.dataCh <- data:
	default:
		logger.GatewayLog.Warnw("dispatch queue full, dropping frame", "channel", dc.label, "id", dc.id)
	}
}

// runChannel is dc's single-task loop: every inbound D-channel frame and
// every SIP message routed back to this D-channel is processed here, in
// arrival order, so callctrl.Manager and dc.sessions never need their own
// lock (spec §5).
func (g *Gateway) runChannel(dc *dchannel) {
	for {
		select {
		case raw, ok := <-dc.dataCh:
			if !ok {
				return
			}
			g.handleInboundQ931(dc, raw)
		case d, ok := <-dc.sipIn:
			if !ok {
				return
			}
			g.handleOutboundSIP(dc, d.rec, d.msg)
		}
	}
}

// handleInboundQ931 is the C+D+G+H leg of the dispatcher: decode, drive the
// call-control state machine, translate the result to SIP, and correlate
// through the registry.
func (g *Gateway) handleInboundQ931(dc *dchannel, raw []byte) {
	msg, err := q931.Decode(raw)
	if err != nil {
		logger.GatewayLog.Warnw("q931 decode failed, dropping", "channel", dc.label, "id", dc.id, "error", err)
		return
	}
	call, outcome, err := dc.manager.Dispatch(msg)
	if err != nil {
		logger.GatewayLog.Warnw("q931 dispatch error", "channel", dc.label, "id", dc.id, "error", err)
		return
	}
	if outcome.Reply != nil {
		g.sendQ931(dc, *outcome.Reply)
	}
	if call != nil {
		g.translateAndForwardQ931(dc, call, msg)
	}
	if outcome.Free && call != nil {
		dc.manager.Free(call.CallRef)
		g.releaseQ931Session(dc, call, causeOf(outcome, call))
	}
}

func causeOf(o callctrl.Outcome, c *callctrl.Call) uint8 {
	if o.HaveCause {
		return o.Cause
	}
	return c.LastCause
}

func (g *Gateway) sendQ931(dc *dchannel, msg q931.Message) {
	wire, err := q931.Encode(msg)
	if err != nil {
		logger.GatewayLog.Errorw("q931 encode failed", "channel", dc.label, "id", dc.id, "error", err)
		return
	}
	dc.send(wire)
}

// translateAndForwardQ931 implements the G+H legs: on a call's first
// message it allocates an RTP pair and registers the session under every
// key it can already carry, then hands the message to translate.Q931ToSIP
// and forwards the result on the gateway's sip.Transport.
func (g *Gateway) translateAndForwardQ931(dc *dchannel, call *callctrl.Call, msg q931.Message) {
	key := q931SessionKey(call.CallRef)
	ctx, ok := dc.sessions[key]
	if !ok {
		ctx = &translate.TranslationContext{
			SessionID:     uuid.NewString(),
			Rules:         g.Rules,
			LocalIP:       g.LocalIP,
			CallingNumber: call.Calling,
			CalledNumber:  call.Called,
		}
		if pair, err := g.RTPPool.Allocate(); err != nil {
			logger.GatewayLog.Warnw("rtp pool exhausted", "channel", dc.label, "id", dc.id, "error", err)
		} else {
			ctx.RTPPort = pair.RTP
		}
		dc.sessions[key] = ctx
		g.trackChannel(key, dc)

		rec := &registry.SessionRecord{
			CallRef:   key,
			SIPCallID: ctx.SessionID,
			RTPPort:   ctx.RTPPort,
			HasRTP:    ctx.RTPPort != 0,
			Calling:   call.Calling,
			Called:    call.Called,
			Protocol:  "Q.931<->SIP",
			Variant:   g.Rules.Variant,
		}
		if err := g.Registry.Insert(rec); err != nil {
			logger.GatewayLog.Warnw("registry insert collision", "channel", dc.label, "id", dc.id, "error", err)
		}
	}

	sipMsg, err := translate.Q931ToSIP(msg, ctx)
	if err != nil {
		logger.GatewayLog.Debugw("no sip mapping for q931 message", "type", msg.MessageType, "error", err)
		return
	}
	sipMsg.Headers.Set("Call-ID", ctx.SessionID)
	if err := g.SIPTransport.Send(sipMsg); err != nil {
		logger.GatewayLog.Warnw("sip transport send failed", "error", err)
	}
}

func (g *Gateway) releaseQ931Session(dc *dchannel, call *callctrl.Call, cause uint8) {
	key := q931SessionKey(call.CallRef)
	ctx, ok := dc.sessions[key]
	if !ok {
		return
	}
	delete(dc.sessions, key)
	g.untrackChannel(key)

	g.Registry.Release(registry.CallRefKey(key), cause)
	g.Registry.Release(registry.SIPCallIDKey(ctx.SessionID), cause)
	if ctx.RTPPort != 0 {
		g.Registry.Release(registry.RTPPortKey(ctx.RTPPort), cause)
		g.RTPPool.Release(ctx.RTPPort)
	}
}

// watchTimers drains a Manager's TimerFired sink, folding timer expiry into
// the same call-control/registry cleanup path as a peer-received message
// (spec §5: "timer expiry looks like any other event to the run loop").
func (g *Gateway) watchTimers(dc *dchannel) {
	for ev := range dc.manager.TimerFired {
		call, ok := dc.manager.LookupByKey(ev.CallRefKey)
		if !ok {
			continue
		}
		outcome := call.HandleTimerExpiry(ev.Kind)
		if outcome.Reply != nil {
			g.sendQ931(dc, *outcome.Reply)
		}
		if outcome.Free {
			dc.manager.Free(call.CallRef)
			g.releaseQ931Session(dc, call, causeOf(outcome, call))
		}
	}
}

func (g *Gateway) trackChannel(key string, dc *dchannel) {
	g.chMu.Lock()
	g.channelByCallRef[key] = dc
	g.chMu.Unlock()
}

func (g *Gateway) untrackChannel(key string) {
	g.chMu.Lock()
	delete(g.channelByCallRef, key)
	g.chMu.Unlock()
}

// Deliver implements sip.Receiver: the reverse direction of the dispatcher,
// correlating an inbound SIP message to its session by Call-ID and
// forwarding the translated result down the TDM or SIGTRAN side it
// belongs to (spec §2 "SIP -> ... " arrows).
func (g *Gateway) Deliver(msg sip.Message) {
	callID, ok := msg.Headers.Get("Call-ID")
	if !ok {
		logger.GatewayLog.Warnw("inbound sip message missing Call-ID, dropping")
		return
	}
	rec, ok := g.Registry.Lookup(registry.SIPCallIDKey(callID))
	if !ok {
		logger.GatewayLog.Warnw("inbound sip message for unknown session", "call-id", callID)
		return
	}
	if rec.HasCIC {
		g.deliverToISUP(rec, msg)
		return
	}
	g.deliverToQ931(rec, msg)
}

func (g *Gateway) deliverToQ931(rec *registry.SessionRecord, msg sip.Message) {
	g.chMu.Lock()
	dc, ok := g.channelByCallRef[rec.CallRef]
	g.chMu.Unlock()
	if !ok {
		logger.GatewayLog.Warnw("sip message for call reference with no matching D-channel", "callref", rec.CallRef)
		return
	}
	select {
	case dc.sipIn <- sipDelivery{rec: rec, msg: msg}:
	default:
		logger.GatewayLog.Warnw("channel sip inbox full, dropping message", "channel", dc.label, "id", dc.id)
	}
}

func (g *Gateway) handleOutboundSIP(dc *dchannel, rec *registry.SessionRecord, msg sip.Message) {
	ctx, ok := dc.sessions[rec.CallRef]
	if !ok {
		logger.GatewayLog.Warnw("sip message for expired session", "callref", rec.CallRef)
		return
	}
	q931Msg, err := translate.SIPToQ931(msg, ctx)
	if err != nil {
		logger.GatewayLog.Debugw("no q931 mapping for sip message", "error", err)
		return
	}
	if call, ok := dc.manager.LookupByKey(rec.CallRef); ok {
		// Messages we originate go out with the flag inverted relative to
		// the call's own reference, same convention callctrl uses for its
		// own replies (see invertFlag in statemachine.go).
		q931Msg.CallRef = q931.CallReference{Value: call.CallRef.Value, Flag: !call.CallRef.Flag}
	}
	g.sendQ931(dc, q931Msg)
}

// handleInboundISUP is the E+G+H leg of the SIGTRAN mirror: decode, drive
// isup.Handler, translate to SIP-T, and correlate through the registry.
func (g *Gateway) handleInboundISUP(raw []byte) {
	msg, err := isup.DecodeAuto(raw)
	if err != nil {
		logger.GatewayLog.Warnw("isup decode failed, dropping", "error", err)
		return
	}
	call, err := g.ISUP.Handle(msg)
	if err != nil {
		logger.GatewayLog.Warnw("isup handle error", "cic", msg.CIC, "error", err)
		return
	}
	if call == nil {
		return // unknown message type, surfaced on Handler.Unknown instead
	}
	g.translateAndForwardISUP(call, msg)
	if msg.Type == isup.MsgRLC {
		g.isupMu.Lock()
		cause := g.causeByCIC[call.CIC]
		g.isupMu.Unlock()
		g.releaseISUPSession(call.CIC, cause)
	}
}

func (g *Gateway) translateAndForwardISUP(call *isup.Call, msg isup.Message) {
	g.isupMu.Lock()
	ctx, ok := g.isupSessions[call.CIC]
	if !ok {
		ctx = &translate.TranslationContext{
			SessionID:     uuid.NewString(),
			Rules:         g.Rules,
			LocalIP:       g.LocalIP,
			CallingNumber: call.Calling,
			CalledNumber:  call.Called,
		}
		if pair, err := g.RTPPool.Allocate(); err != nil {
			logger.GatewayLog.Warnw("rtp pool exhausted", "cic", call.CIC, "error", err)
		} else {
			ctx.RTPPort = pair.RTP
		}
		g.isupSessions[call.CIC] = ctx

		rec := &registry.SessionRecord{
			CIC:       call.CIC,
			HasCIC:    true,
			SIPCallID: ctx.SessionID,
			RTPPort:   ctx.RTPPort,
			HasRTP:    ctx.RTPPort != 0,
			Calling:   call.Calling,
			Called:    call.Called,
			Protocol:  "ISUP<->SIP-T",
			Variant:   g.Rules.Variant,
		}
		if err := g.Registry.Insert(rec); err != nil {
			logger.GatewayLog.Warnw("registry insert collision", "cic", call.CIC, "error", err)
		}
	}
	if msg.Type == isup.MsgREL {
		if cause, ok := isup.ParseCauseParam(msg.Optional); ok {
			g.causeByCIC[call.CIC] = cause
		}
	}
	g.isupMu.Unlock()

	sipMsg, err := translate.ISUPToSIPT(msg, ctx, call)
	if err != nil {
		logger.GatewayLog.Debugw("no sip-t mapping for isup message", "type", msg.Type, "error", err)
		return
	}
	sipMsg.Headers.Set("Call-ID", ctx.SessionID)
	if err := g.SIPTransport.Send(sipMsg); err != nil {
		logger.GatewayLog.Warnw("sip transport send failed", "error", err)
	}
}

func (g *Gateway) releaseISUPSession(cic int, cause uint8) {
	g.isupMu.Lock()
	ctx, ok := g.isupSessions[cic]
	if ok {
		delete(g.isupSessions, cic)
		delete(g.causeByCIC, cic)
	}
	g.isupMu.Unlock()
	if !ok {
		return
	}

	g.Registry.Release(registry.CICKey(cic), cause)
	g.Registry.Release(registry.SIPCallIDKey(ctx.SessionID), cause)
	if ctx.RTPPort != 0 {
		g.Registry.Release(registry.RTPPortKey(ctx.RTPPort), cause)
		g.RTPPool.Release(ctx.RTPPort)
	}
}

func (g *Gateway) deliverToISUP(rec *registry.SessionRecord, msg sip.Message) {
	g.isupMu.Lock()
	ctx, ok := g.isupSessions[rec.CIC]
	g.isupMu.Unlock()
	if !ok {
		logger.GatewayLog.Warnw("sip message for expired isup session", "cic", rec.CIC)
		return
	}
	isupMsg, err := translate.SIPToISUP(msg, ctx, rec.CIC)
	if err != nil {
		logger.GatewayLog.Debugw("no isup mapping for sip message", "error", err)
		return
	}
	if g.SigtranAssoc == nil {
		logger.GatewayLog.Warnw("no sigtran association attached, dropping isup message", "cic", rec.CIC)
		return
	}
	if err := g.SigtranAssoc.Send(isup.Encode(isupMsg)); err != nil {
		logger.GatewayLog.Warnw("sigtran send failed", "cic", rec.CIC, "error", err)
	}
}
