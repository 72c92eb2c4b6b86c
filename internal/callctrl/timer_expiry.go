// SPDX-License-Identifier: Apache-2.0

package callctrl

import "github.com/tdmsip/gateway/internal/q931"

// HandleTimerExpiry implements the timer-driven half of spec §4.D: each
// timer's protocol-defined follow-up on expiry.
func (c *Call) HandleTimerExpiry(kind TimerKind) Outcome {
	switch kind {
	case TimerT301:
		// Alerting timed out: local clearing, no defined cause in spec beyond
		// "protocol-defined follow-up"; normal-unspecified is the safe default.
		return c.localClear(CauseNormalUnspecified)
	case TimerT302:
		return c.onSendingCompleteTimeout()
	case TimerT303:
		// SETUP ack timed out -> local clearing with cause 102.
		return c.localClear(CauseRecoveryOnTimerExp)
	case TimerT305:
		c.State = StateReleaseRequest
		rel := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgRelease, IEs: []q931.IE{q931.BuildCause(CauseRecoveryOnTimerExp, 0)}}
		c.timers.start(TimerT308, 0)
		return Outcome{Reply: &rel}
	case TimerT308:
		return c.onT308Expiry()
	case TimerT310:
		return c.localClear(CauseRecoveryOnTimerExp)
	default:
		return Outcome{}
	}
}

// onSendingCompleteTimeout fires when overlap accumulation (sending or
// receiving) never reaches a sending-complete marker (spec §4.G edge case).
func (c *Call) onSendingCompleteTimeout() Outcome {
	if c.State == StateOverlapReceiving {
		c.State = StateCallPresent
		return Outcome{}
	}
	if c.State == StateOverlapSending {
		c.State = StateOutgoingCallProceeding
	}
	return Outcome{}
}

// onT308Expiry implements the "one retry" rule for T308: retransmit RELEASE
// once, then clear locally.
func (c *Call) onT308Expiry() Outcome {
	if c.timers.t308Retries == 0 {
		c.timers.t308Retries++
		rel := q931.Message{CallRef: invertFlag(c.CallRef), MessageType: q931.MsgRelease, IEs: []q931.IE{q931.BuildCause(c.LastCause, 0)}}
		c.timers.start(TimerT308, 0)
		return Outcome{Reply: &rel}
	}
	return Outcome{Free: true, Cause: CauseRecoveryOnTimerExp, HaveCause: true}
}

// AccumulateOverlapDigit appends a digit received via overlap sending or
// receiving and restarts T302.
func (c *Call) AccumulateOverlapDigit(digit byte) {
	c.overlapDigits += string(digit)
	c.timers.start(TimerT302, 0)
}

// OverlapDigits returns the digits accumulated so far in overlap mode.
func (c *Call) OverlapDigits() string { return c.overlapDigits }
