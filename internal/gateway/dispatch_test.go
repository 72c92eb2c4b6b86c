// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdmsip/gateway/internal/callctrl"
	"github.com/tdmsip/gateway/internal/q931"
	"github.com/tdmsip/gateway/internal/registry"
	"github.com/tdmsip/gateway/internal/rtp"
	"github.com/tdmsip/gateway/internal/sip"
	"github.com/tdmsip/gateway/internal/translate"
)

func newTestGateway(t *testing.T) (*Gateway, *dchannel, *sip.MemoryTransport) {
	t.Helper()
	rules, err := translate.LoadRuleSet("ITU")
	require.NoError(t, err)

	trans := &sip.MemoryTransport{}
	g := &Gateway{
		Registry:         registry.New(nil),
		RTPPool:          rtp.New(20000, 20010),
		Rules:            rules,
		LocalIP:          "10.0.0.1",
		SIPTransport:     trans,
		channelByCallRef: make(map[string]*dchannel),
		isupSessions:     make(map[int]*translate.TranslationContext),
		causeByCIC:       make(map[int]uint8),
	}
	dc := &dchannel{
		label:    "span",
		id:       1,
		manager:  callctrl.NewManager(nil),
		sessions: make(map[string]*translate.TranslationContext),
	}
	var sent [][]byte
	dc.send = func(wire []byte) { sent = append(sent, wire) }
	g.channels = []*dchannel{dc}
	return g, dc, trans
}

func encodeSetup(t *testing.T, callRef byte) []byte {
	t.Helper()
	wire, err := q931.Encode(q931.Message{
		CallRef:     q931.CallReference{Value: []byte{callRef}},
		MessageType: q931.MsgSetup,
		IEs: []q931.IE{
			q931.BuildNumber(q931.IECallingPartyNumber, "5551001", 0x02, 0x01),
			q931.BuildNumber(q931.IECalledPartyNumber, "5551002", 0x02, 0x01),
			{Tag: q931.IESendingComplete, Single: true},
		},
	})
	require.NoError(t, err)
	return wire
}

// TestHandleInboundQ931_SetupProducesInviteAndRegistersSession exercises
// the dispatcher's C+D+G+H leg end to end: a wire SETUP must reach
// callctrl, come out the other side as a SIP INVITE, and register a
// session correlating the call reference, the SIP Call-ID it was tagged
// with, and the RTP port allocated for it.
func TestHandleInboundQ931_SetupProducesInviteAndRegistersSession(t *testing.T) {
	g, dc, trans := newTestGateway(t)

	g.handleInboundQ931(dc, encodeSetup(t, 0x01))

	require.Len(t, trans.Sent, 1)
	invite := trans.Sent[0]
	require.Equal(t, "INVITE", invite.Method)
	callID, ok := invite.Headers.Get("Call-ID")
	require.True(t, ok)
	require.NotEmpty(t, callID)

	rec, ok := g.Registry.Lookup(registry.SIPCallIDKey(callID))
	require.True(t, ok)
	require.True(t, rec.HasRTP)
	require.Equal(t, "5551001", rec.Calling)
	require.Equal(t, "5551002", rec.Called)

	_, tracked := g.channelByCallRef[q931SessionKey(q931.CallReference{Value: []byte{0x01}})]
	require.True(t, tracked)
}

// TestHandleInboundQ931_CollidingSetupIsRejected implements spec §4.D's
// tie-break: a second SETUP on a call reference already active on this
// D-channel gets RELEASE COMPLETE cause 81, not a second session.
func TestHandleInboundQ931_CollidingSetupIsRejected(t *testing.T) {
	g, dc, trans := newTestGateway(t)

	g.handleInboundQ931(dc, encodeSetup(t, 0x02))
	require.Len(t, trans.Sent, 1)

	g.handleInboundQ931(dc, encodeSetup(t, 0x02))
	require.Len(t, trans.Sent, 1, "colliding SETUP must not produce a second INVITE")
}

// TestHandleInboundQ931_ReleaseTearsDownSession implements spec §4.H: a
// RELEASE frees the call, releases every registry key the session carries,
// and returns its RTP port pair to the pool.
func TestHandleInboundQ931_ReleaseTearsDownSession(t *testing.T) {
	g, dc, _ := newTestGateway(t)

	g.handleInboundQ931(dc, encodeSetup(t, 0x03))
	key := q931SessionKey(q931.CallReference{Value: []byte{0x03}})
	ctx, ok := dc.sessions[key]
	require.True(t, ok)
	rtpPort := ctx.RTPPort
	require.True(t, g.RTPPool.InUse(rtpPort))

	wire, err := q931.Encode(q931.Message{
		CallRef:     q931.CallReference{Value: []byte{0x03}, Flag: true},
		MessageType: q931.MsgRelease,
		IEs:         []q931.IE{q931.BuildCause(16, 0)},
	})
	require.NoError(t, err)
	g.handleInboundQ931(dc, wire)

	_, ok = dc.sessions[key]
	require.False(t, ok)
	require.False(t, g.RTPPool.InUse(rtpPort))
	_, ok = g.Registry.Lookup(registry.CallRefKey(key))
	require.False(t, ok)
	_, ok = dc.manager.LookupByKey(key)
	require.False(t, ok)
}

// TestHandleOutboundSIP_ByeTranslatesToDisconnect implements the reverse
// leg: a SIP BYE routed back to a session's D-channel comes out as a
// Q.931 DISCONNECT addressed with the flag inverted relative to the call's
// own reference.
func TestHandleOutboundSIP_ByeTranslatesToDisconnect(t *testing.T) {
	g, dc, _ := newTestGateway(t)
	g.handleInboundQ931(dc, encodeSetup(t, 0x04))

	key := q931SessionKey(q931.CallReference{Value: []byte{0x04}})
	rec, ok := g.Registry.Lookup(registry.CallRefKey(key))
	require.True(t, ok)

	var sent [][]byte
	dc.send = func(wire []byte) { sent = append(sent, wire) }

	g.handleOutboundSIP(dc, rec, sip.Message{Method: "BYE"})

	require.Len(t, sent, 1)
	decoded, err := q931.Decode(sent[0])
	require.NoError(t, err)
	require.Equal(t, q931.MsgDisconnect, decoded.MessageType)
	require.Equal(t, []byte{0x04}, decoded.CallRef.Value)
	require.True(t, decoded.CallRef.Flag)
}
