// SPDX-License-Identifier: Apache-2.0

package callctrl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdmsip/gateway/internal/q931"
)

func TestInboundSetupToActive(t *testing.T) {
	mgr := NewManager(nil)
	cr := q931.CallReference{Value: []byte{0x12, 0x34}}
	c, err := mgr.AdmitIncomingCall(cr)
	require.NoError(t, err)

	setup := q931.Message{
		CallRef:     cr,
		MessageType: q931.MsgSetup,
		IEs: []q931.IE{
			q931.BuildNumber(q931.IECallingPartyNumber, "5551001", 2, 1),
			q931.BuildNumber(q931.IECalledPartyNumber, "5551002", 2, 1),
			{Tag: q931.IESendingComplete, Single: true},
		},
	}
	out := c.HandleMessage(setup)
	require.Nil(t, out.Reply)
	require.Equal(t, StateCallPresent, c.State)
	require.Equal(t, "5551001", c.Calling)
	require.Equal(t, "5551002", c.Called)

	out = c.HandleMessage(q931.Message{CallRef: cr, MessageType: q931.MsgConnect})
	require.Equal(t, StateConnectRequest, c.State)

	out = c.HandleMessage(q931.Message{CallRef: cr, MessageType: q931.MsgConnectAck})
	require.Equal(t, StateActive, c.State)
	_ = out
}

func TestCallReferenceCollisionRejected(t *testing.T) {
	mgr := NewManager(nil)
	cr := q931.CallReference{Value: []byte{0x00, 0x01}}
	_, err := mgr.AdmitIncomingCall(cr)
	require.NoError(t, err)

	_, err = mgr.AdmitIncomingCall(cr)
	require.Error(t, err)
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ErrCallRefCollision, ce.Kind)

	reject := RejectCollidingSetup(cr)
	require.Equal(t, q931.MsgReleaseComplete, reject.MessageType)
	cause, ok := q931.ParseCause(reject.IEs)
	require.True(t, ok)
	require.EqualValues(t, CauseInvalidCallRef, cause)
}

func TestDisconnectReleaseSequence(t *testing.T) {
	mgr := NewManager(nil)
	cr := q931.CallReference{Value: []byte{0x00, 0x02}}
	c, err := mgr.NewOutgoingCall(cr)
	require.NoError(t, err)
	c.State = StateActive

	out := c.HandleMessage(q931.Message{
		CallRef:     cr,
		MessageType: q931.MsgDisconnect,
		IEs:         []q931.IE{q931.BuildCause(CauseNormalClearing, 0)},
	})
	require.NotNil(t, out.Reply)
	require.Equal(t, q931.MsgRelease, out.Reply.MessageType)
	require.Equal(t, StateReleaseRequest, c.State)

	out = c.HandleMessage(q931.Message{CallRef: cr, MessageType: q931.MsgReleaseComplete})
	require.True(t, out.Free)
	mgr.Free(cr)
	_, ok := mgr.Lookup(cr)
	require.False(t, ok)
}

func TestGlareTieBreak(t *testing.T) {
	require.True(t, ResolveGlare(200, 100, nil, nil))
	require.False(t, ResolveGlare(100, 200, nil, nil))
	require.True(t, ResolveGlare(100, 100, []byte{0x02}, []byte{0x01}))
}

func TestStatusIncompatibleClearsCall(t *testing.T) {
	mgr := NewManager(nil)
	cr := q931.CallReference{Value: []byte{0x00, 0x03}}
	c, err := mgr.NewOutgoingCall(cr)
	require.NoError(t, err)
	c.State = StateActive

	status := q931.Message{
		CallRef:     cr,
		MessageType: q931.MsgStatus,
		IEs:         []q931.IE{{Tag: 0x14, Value: []byte{byte(StateNull)}}},
	}
	out := c.HandleMessage(status)
	require.NotNil(t, out.Reply)
	require.Equal(t, q931.MsgRelease, out.Reply.MessageType)
	cause, _ := q931.ParseCause(out.Reply.IEs)
	require.EqualValues(t, CauseIncompatibleDestSt, cause)
}
