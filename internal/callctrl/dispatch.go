// SPDX-License-Identifier: Apache-2.0

package callctrl

import "github.com/tdmsip/gateway/internal/q931"

// Dispatch routes an inbound Q.931 message to the call it belongs to,
// admitting a new Call on SETUP. A SETUP colliding with an in-progress call
// reference is rejected with RELEASE COMPLETE cause 81 rather than admitted
// (spec §4.D tie-break); any other message for an unknown call reference is
// a protocol error the caller logs and drops.
func (m *Manager) Dispatch(msg q931.Message) (*Call, Outcome, error) {
	if msg.MessageType == q931.MsgSetup {
		c, err := m.AdmitIncomingCall(msg.CallRef)
		if err != nil {
			reply := RejectCollidingSetup(msg.CallRef)
			return nil, Outcome{Reply: &reply}, nil
		}
		return c, c.HandleMessage(msg), nil
	}

	c, ok := m.Lookup(msg.CallRef)
	if !ok {
		return nil, Outcome{}, &CallError{ErrCallRefCollision, "message for unknown call reference"}
	}
	return c, c.HandleMessage(msg), nil
}

// LookupByKey finds a call by the same opaque key TimerEvent.CallRefKey
// carries, for a caller (the gateway's timer-expiry drain) that only has
// the key, not a full q931.CallReference, to hand back.
func (m *Manager) LookupByKey(key string) (*Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[key]
	return c, ok
}
