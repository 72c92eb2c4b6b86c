// SPDX-License-Identifier: Apache-2.0

package callctrl

import "github.com/tdmsip/gateway/internal/q931"

// Outcome is what a state machine step produces: an optional message to
// send back over the D-channel, and whether the call should be freed
// afterwards (terminal message reached, per spec §4.D).
type Outcome struct {
	Reply    *q931.Message
	Free     bool
	Cause    uint8
	HaveCause bool
}

// HandleMessage advances c's state machine on receipt of msg and returns
// what the caller should do next.
func (c *Call) HandleMessage(msg q931.Message) Outcome {
	switch msg.MessageType {
	case q931.MsgSetup:
		return c.onSetup(msg)
	case q931.MsgCallProceeding:
		return c.onCallProceeding(msg)
	case q931.MsgAlerting:
		return c.onAlerting(msg)
	case q931.MsgConnect:
		return c.onConnect(msg)
	case q931.MsgConnectAck:
		return c.onConnectAck(msg)
	case q931.MsgDisconnect:
		return c.onDisconnect(msg)
	case q931.MsgRelease:
		return c.onRelease(msg)
	case q931.MsgReleaseComplete:
		return c.onReleaseComplete(msg)
	case q931.MsgStatus:
		return c.onStatus(msg)
	case q931.MsgStatusEnquiry:
		return c.onStatusEnquiry(msg)
	case q931.MsgSetupAck:
		return c.onSetupAck(msg)
	default:
		return c.replyStatus(CauseNormalUnspecified)
	}
}

func (c *Call) captureAddresses(msg q931.Message) {
	if v, ok := q931.ParseNumber(msg.IEs, q931.IECallingPartyNumber); ok {
		c.Calling = v
	}
	if v, ok := q931.ParseNumber(msg.IEs, q931.IECalledPartyNumber); ok {
		c.Called = v
	}
	if ie, ok := q931.FindIE(msg.IEs, q931.IEBearerCapability); ok {
		c.Bearer = ie.Value
	}
}

func (c *Call) onSetup(msg q931.Message) Outcome {
	// Only meaningful in Null (fresh inbound call); a SETUP retransmission
	// on an established call reference is a collision the Manager already
	// rejected before constructing this Call.
	c.captureAddresses(msg)
	_, complete := q931.FindIE(msg.IEs, q931.IESendingComplete)
	if complete || c.Called != "" {
		c.State = StateCallPresent
	} else {
		c.State = StateOverlapReceiving
		c.timers.start(TimerT302, 0)
	}
	return Outcome{}
}

func (c *Call) onSetupAck(msg q931.Message) Outcome {
	if c.State != StateCallInitiated {
		return c.replyStatus(CauseIncompatibleDestSt)
	}
	c.State = StateOverlapSending
	c.timers.stop(TimerT303)
	c.timers.start(TimerT302, 0)
	return Outcome{}
}

func (c *Call) onCallProceeding(msg q931.Message) Outcome {
	if c.Originating {
		if c.State != StateCallInitiated && c.State != StateOverlapSending {
			return c.replyStatus(CauseIncompatibleDestSt)
		}
		c.timers.stop(TimerT303)
		c.timers.stop(TimerT302)
		c.timers.start(TimerT310, 0)
		c.State = StateOutgoingCallProceeding
	} else {
		if c.State != StateCallPresent && c.State != StateOverlapReceiving {
			return c.replyStatus(CauseIncompatibleDestSt)
		}
		c.timers.stop(TimerT302)
		c.State = StateIncomingCallProceeding
	}
	return Outcome{}
}

func (c *Call) onAlerting(msg q931.Message) Outcome {
	if !c.Originating {
		return c.replyStatus(CauseIncompatibleDestSt)
	}
	if c.State != StateOutgoingCallProceeding && c.State != StateCallInitiated {
		return c.replyStatus(CauseIncompatibleDestSt)
	}
	c.timers.stop(TimerT310)
	c.timers.start(TimerT301, 0)
	c.State = StateCallDelivered
	return Outcome{}
}

func (c *Call) onConnect(msg q931.Message) Outcome {
	if c.Originating {
		if c.State != StateCallDelivered && c.State != StateOutgoingCallProceeding && c.State != StateCallInitiated {
			return c.replyStatus(CauseIncompatibleDestSt)
		}
		c.timers.stop(TimerT301)
		c.timers.stop(TimerT310)
		c.State = StateActive
		ack := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgConnectAck}
		return Outcome{Reply: &ack}
	}
	// Answering side sends CONNECT; stays in ConnectRequest until CONNECT ACK.
	c.State = StateConnectRequest
	return Outcome{}
}

func (c *Call) onConnectAck(msg q931.Message) Outcome {
	if c.State != StateConnectRequest {
		return c.replyStatus(CauseIncompatibleDestSt)
	}
	c.State = StateActive
	return Outcome{}
}

func (c *Call) onDisconnect(msg q931.Message) Outcome {
	cause, _ := q931.ParseCause(msg.IEs)
	c.LastCause = cause
	c.State = StateDisconnectIndication
	rel := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgRelease, IEs: []q931.IE{q931.BuildCause(cause, 0)}}
	c.State = StateReleaseRequest
	c.timers.start(TimerT308, 0)
	return Outcome{Reply: &rel}
}

func (c *Call) onRelease(msg q931.Message) Outcome {
	cause, _ := q931.ParseCause(msg.IEs)
	c.LastCause = cause
	c.timers.stop(TimerT308)
	c.timers.stop(TimerT305)
	rc := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgReleaseComplete}
	return Outcome{Reply: &rc, Free: true, Cause: cause, HaveCause: true}
}

func (c *Call) onReleaseComplete(msg q931.Message) Outcome {
	cause, _ := q931.ParseCause(msg.IEs)
	c.LastCause = cause
	c.timers.stopAll()
	return Outcome{Free: true, Cause: cause, HaveCause: true}
}

// onStatus implements spec §4.D's STATUS tie-break: a STATUS reporting a
// state compatible with ours is accepted silently; incompatible triggers
// local clearing with cause 101.
func (c *Call) onStatus(msg q931.Message) Outcome {
	reportedCompatible := statusIsCompatible(msg, c.State)
	if reportedCompatible {
		return Outcome{}
	}
	return c.localClear(CauseIncompatibleDestSt)
}

func statusIsCompatible(msg q931.Message, local State) bool {
	// The call-state IE (tag 0x14) carries the peer's view of our state;
	// treat an identical or ReleaseRequest peer state as compatible (a Null
	// peer state is incompatible), mirroring the common ETSI/ANSI STATUS
	// audit behaviour.
	ie, ok := q931.FindIE(msg.IEs, 0x14)
	if !ok || len(ie.Value) == 0 {
		return true
	}
	peerState := State(ie.Value[len(ie.Value)-1] & 0x3F)
	return peerState == local || peerState == StateReleaseRequest
}

func (c *Call) onStatusEnquiry(msg q931.Message) Outcome {
	reply := q931.Message{
		CallRef:     invertFlag(c.CallRef),
		MessageType: q931.MsgStatus,
		IEs: []q931.IE{
			q931.BuildCause(CauseRecoveryOnTimerExp, 0),
			{Tag: 0x14, Value: []byte{byte(c.State)}},
		},
	}
	return Outcome{Reply: &reply}
}

func (c *Call) replyStatus(cause uint8) Outcome {
	reply := q931.Message{
		CallRef:     invertFlag(c.CallRef),
		MessageType: q931.MsgStatus,
		IEs: []q931.IE{
			q931.BuildCause(cause, 0),
			{Tag: 0x14, Value: []byte{byte(c.State)}},
		},
	}
	return Outcome{Reply: &reply}
}

// localClear drives the call along the release path with the given cause,
// used by timer expiry and incompatible-STATUS handling (spec §7 "Call"
// errors "map to Q.850 cause and drive the SM along the release path").
func (c *Call) localClear(cause uint8) Outcome {
	c.LastCause = cause
	c.State = StateReleaseRequest
	rel := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgRelease, IEs: []q931.IE{q931.BuildCause(cause, 0)}}
	c.timers.start(TimerT308, 0)
	return Outcome{Reply: &rel}
}

func invertFlag(cr q931.CallReference) q931.CallReference {
	return q931.CallReference{Value: cr.Value, Flag: !cr.Flag}
}
