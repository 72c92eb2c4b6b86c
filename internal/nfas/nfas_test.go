// SPDX-License-Identifier: Apache-2.0

package nfas

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdmsip/gateway/internal/frame"
	"github.com/tdmsip/gateway/internal/lapd"
)

// autoAckTransport plays the peer side of link establishment: any SABME it
// is asked to send is immediately answered with a UA on the same engine, so
// tests don't need to hand-step establishment for every member.
type autoAckTransport struct {
	engine *lapd.Engine
}

func (t *autoAckTransport) Send(octets []byte) error {
	f, err := frame.Decode(octets, frame.DefaultN201)
	if err != nil {
		return nil
	}
	if f.Control.Kind == frame.KindU && f.Control.UFunction == frame.UFunctionSABME {
		go func() {
			wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionUA, PF: true}})
			t.engine.Receive(wire)
		}()
	}
	return nil
}

func newMember(t *testing.T, spanID int, role lapd.Role) *Member {
	trans := &autoAckTransport{}
	e := lapd.New(lapd.Config{
		SAPI: 0, TEI: uint8(spanID),
		T200: 20 * time.Millisecond, T203: time.Second, N200: 3, K: 7,
		Trans: trans,
	}, nil)
	trans.engine = e
	go e.Run()
	t.Cleanup(e.Close)
	return &Member{SpanID: spanID, Engine: e, Role: role}
}

func waitGroupEvent(t *testing.T, g *Group) Event {
	select {
	case ev := <-g.Events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for group event")
		return Event{}
	}
}

// TestGroupSwitchoverOnLinkError implements spec §8 scenario 2: the primary
// D-channel fails and the group switches over to the backup.
func TestGroupSwitchoverOnLinkError(t *testing.T) {
	primary := newMember(t, 1, lapd.RolePrimary)
	backup := newMember(t, 2, lapd.RoleBackup)

	g, err := New(1, []*Member{primary, backup}, Config{
		HeartbeatInterval: time.Hour, // heartbeat not under test here
		SwitchoverTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())

	require.Eventually(t, func() bool { return g.ActiveSpanID() == 1 }, time.Second, 5*time.Millisecond)

	// simulate a peer FRMR on the primary link, forcing an EventError.
	wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionFRMR, PF: true}})
	primary.Engine.Receive(wire)

	ev := waitGroupEvent(t, g)
	require.Equal(t, EventSwitchoverCompleted, ev.Kind)
	require.Equal(t, 1, ev.From)
	require.Equal(t, 2, ev.To)
	require.Equal(t, StateActive, g.State())
	require.Equal(t, 2, g.ActiveSpanID())
	require.Equal(t, 1, g.Counters().Switchovers)
}

// TestSingleMemberGroupNeverSwitchesOver implements the spec §8 boundary
// case: a group with exactly one span has nowhere to fail over to.
func TestSingleMemberGroupNeverSwitchesOver(t *testing.T) {
	only := newMember(t, 1, lapd.RolePrimary)
	g, err := New(1, []*Member{only}, Config{SwitchoverTimeout: time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())

	require.Eventually(t, func() bool { return g.ActiveSpanID() == 1 }, time.Second, 5*time.Millisecond)

	wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionFRMR, PF: true}})
	only.Engine.Receive(wire)

	ev := waitGroupEvent(t, g)
	require.Equal(t, EventGroupInactive, ev.Kind)
	require.Equal(t, StateInactive, g.State())
	require.Equal(t, 0, g.ActiveSpanID())
}

// TestEmptySpanListRejected implements the spec §8 config-error boundary.
func TestEmptySpanListRejected(t *testing.T) {
	_, err := New(1, nil, Config{}, nil)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
}

// TestHeartbeatFailureTriggersSwitchover exercises the Q.921 poll-based
// heartbeat path rather than a link-layer error event.
func TestHeartbeatFailureTriggersSwitchover(t *testing.T) {
	primary := newMember(t, 1, lapd.RolePrimary)
	backup := newMember(t, 2, lapd.RoleBackup)

	g, err := New(1, []*Member{primary, backup}, Config{
		HeartbeatInterval:      10 * time.Millisecond,
		HeartbeatLossThreshold: 2,
		SwitchoverTimeout:      time.Second,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	require.Eventually(t, func() bool { return g.ActiveSpanID() == 1 }, time.Second, 5*time.Millisecond)

	// force the primary down without going through the group's own event
	// path, so only the heartbeat probe notices the loss.
	primary.Engine.Stop()

	ev := waitGroupEvent(t, g)
	require.Equal(t, EventSwitchoverCompleted, ev.Kind)
	require.Equal(t, 2, ev.To)
}

// firstAttemptDMTransport answers a candidate's first SABME with DM (link
// establishment refused) and every subsequent SABME with UA, so a member can
// be made to fail its first switchover round and succeed on a later one.
type firstAttemptDMTransport struct {
	engine  *lapd.Engine
	attempt int
}

func (t *firstAttemptDMTransport) Send(octets []byte) error {
	f, err := frame.Decode(octets, frame.DefaultN201)
	if err != nil {
		return nil
	}
	if f.Control.Kind != frame.KindU || f.Control.UFunction != frame.UFunctionSABME {
		return nil
	}
	t.attempt++
	reply := frame.UFunctionUA
	if t.attempt == 1 {
		reply = frame.UFunctionDM
	}
	go func(uf frame.UFunction) {
		wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: uf, PF: true}})
		t.engine.Receive(wire)
	}(reply)
	return nil
}

// TestSwitchoverRetriesCandidateOnLaterRound implements spec.md:94's "If all
// candidates fail within maxSwitchoverAttempts rounds..." — a candidate that
// fails to establish in round 1 must be retried in round 2, not skipped
// forever because it was already marked failed.
func TestSwitchoverRetriesCandidateOnLaterRound(t *testing.T) {
	primary := newMember(t, 1, lapd.RolePrimary)

	backupTrans := &firstAttemptDMTransport{}
	backupEngine := lapd.New(lapd.Config{
		SAPI: 0, TEI: 2,
		T200: 20 * time.Millisecond, T203: time.Second, N200: 1, K: 7,
		Trans: backupTrans,
	}, nil)
	backupTrans.engine = backupEngine
	go backupEngine.Run()
	t.Cleanup(backupEngine.Close)
	backup := &Member{SpanID: 2, Engine: backupEngine, Role: lapd.RoleBackup}

	g, err := New(1, []*Member{primary, backup}, Config{
		HeartbeatInterval:     time.Hour,
		SwitchoverTimeout:     time.Second,
		MaxSwitchoverAttempts: 2,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	require.Eventually(t, func() bool { return g.ActiveSpanID() == 1 }, time.Second, 5*time.Millisecond)

	wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionFRMR, PF: true}})
	primary.Engine.Receive(wire)

	ev := waitGroupEvent(t, g)
	require.Equal(t, EventSwitchoverCompleted, ev.Kind)
	require.Equal(t, 2, ev.To)
	require.Equal(t, 2, backupTrans.attempt, "backup must have been tried again on the second round")
}

// recordingTransport auto-acks SABME (so its engine can establish) and
// records every I-frame payload handed to it, for asserting replay.
type recordingTransport struct {
	engine  *lapd.Engine
	mu      sync.Mutex
	iframes [][]byte
}

func (t *recordingTransport) Send(octets []byte) error {
	f, err := frame.Decode(octets, frame.DefaultN201)
	if err != nil {
		return nil
	}
	switch {
	case f.Control.Kind == frame.KindU && f.Control.UFunction == frame.UFunctionSABME:
		go func() {
			wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionUA, PF: true}})
			t.engine.Receive(wire)
		}()
	case f.Control.Kind == frame.KindI:
		t.mu.Lock()
		t.iframes = append(t.iframes, append([]byte(nil), f.Information...))
		t.mu.Unlock()
	}
	return nil
}

func (t *recordingTransport) received() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.iframes...)
}

// TestSwitchoverReplaysUnacknowledgedFrames implements spec.md:129's
// at-least-once upstream invariant: an I-frame sent on the old active engine
// but never peer-acknowledged before it failed must be replayed on the new
// active engine, not dropped.
func TestSwitchoverReplaysUnacknowledgedFrames(t *testing.T) {
	primary := newMember(t, 1, lapd.RolePrimary) // autoAckTransport never ACKs I-frames

	backupTrans := &recordingTransport{}
	backupEngine := lapd.New(lapd.Config{
		SAPI: 0, TEI: 2,
		T200: 20 * time.Millisecond, T203: time.Second, N200: 3, K: 7,
		Trans: backupTrans,
	}, nil)
	backupTrans.engine = backupEngine
	go backupEngine.Run()
	t.Cleanup(backupEngine.Close)
	backup := &Member{SpanID: 2, Engine: backupEngine, Role: lapd.RoleBackup}

	g, err := New(1, []*Member{primary, backup}, Config{
		HeartbeatInterval: time.Hour,
		SwitchoverTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	require.Eventually(t, func() bool { return g.ActiveSpanID() == 1 }, time.Second, 5*time.Millisecond)

	g.SendUpstream([]byte("unacked-setup"))
	time.Sleep(20 * time.Millisecond) // let the I-frame actually go out unacked

	wire, _ := frame.Encode(frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionFRMR, PF: true}})
	primary.Engine.Receive(wire)

	ev := waitGroupEvent(t, g)
	require.Equal(t, EventSwitchoverCompleted, ev.Kind)

	require.Eventually(t, func() bool {
		for _, f := range backupTrans.received() {
			if string(f) == "unacked-setup" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "unacknowledged frame must be replayed on the new active engine")
}
