// SPDX-License-Identifier: Apache-2.0

package lapd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdmsip/gateway/internal/frame"
)

// fakeTransport records every wire frame sent so tests can assert on them
// and inject synthetic peer responses without a real TDM driver.
type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) Send(octets []byte) error {
	cp := append([]byte(nil), octets...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) lastFrame(t *testing.T) frame.Frame {
	require.NotEmpty(t, f.sent)
	fr, err := frame.Decode(f.sent[len(f.sent)-1], frame.DefaultN201)
	require.NoError(t, err)
	return fr
}

func newTestEngine(trans Transport) *Engine {
	cfg := Config{SAPI: 0, TEI: 1, T200: 20 * time.Millisecond, T203: 200 * time.Millisecond, N200: 3, K: 7, Trans: trans}
	return New(cfg, nil)
}

func establish(t *testing.T, e *Engine, trans *fakeTransport) {
	e.Start()
	drainOne(t, e)
	req := trans.lastFrame(t)
	require.Equal(t, frame.KindU, req.Control.Kind)
	require.Equal(t, frame.UFunctionSABME, req.Control.UFunction)

	e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindU, UFunction: frame.UFunctionUA, PF: true}}))
	ev := waitEvent(t, e)
	require.Equal(t, EventEstablished, ev.Kind)
}

func drainOne(t *testing.T, e *Engine) {
	// give the run loop a tick to process the just-sent command
	time.Sleep(5 * time.Millisecond)
}

func waitEvent(t *testing.T, e *Engine) Event {
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func mustEncode(t *testing.T, f frame.Frame) []byte {
	wire, err := frame.Encode(f)
	require.NoError(t, err)
	return wire
}

func TestEngine_EstablishmentHandshake(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()

	establish(t, e, trans)
	require.Equal(t, StateEstablished, e.State())
}

func TestEngine_EstablishmentFailsAfterN200Retries(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()

	e.Start()
	// Never answer; T200 fires N200 times then EstablishmentFailed.
	ev := waitEvent(t, e)
	require.Equal(t, EventError, ev.Kind)
	require.Equal(t, ErrEstablishmentFailed, ev.Error)
	require.Equal(t, StateDown, e.State())
}

// TestEngine_RetransmissionScenario implements spec §8 scenario 3: send
// three I-frames N(S)=0,1,2, peer RRs N(R)=2 (acking 0 and 1), then T200
// retransmits the remaining frame until N200 is exceeded and LinkLost fires.
func TestEngine_RetransmissionScenario(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()

	establish(t, e, trans)

	e.SendUserData([]byte{0x01})
	e.SendUserData([]byte{0x02})
	e.SendUserData([]byte{0x03})
	time.Sleep(10 * time.Millisecond)

	e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionRR, NR: 2}}))
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, uint8(2), e.va)
	require.Len(t, e.txQueue, 1)
	require.Equal(t, uint8(2), e.txQueue[0].ns)

	ev := waitEvent(t, e)
	require.Equal(t, EventError, ev.Kind)
	require.Equal(t, ErrLinkLost, ev.Error)
	require.Equal(t, StateDown, e.State())
}

func TestEngine_SequenceNumberWrap(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()
	establish(t, e, trans)

	for i := 0; i < 128; i++ {
		e.SendUserData([]byte{byte(i)})
		time.Sleep(time.Millisecond)
		last := trans.lastFrame(t)
		require.EqualValues(t, i%128, last.Control.NS)
		e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionRR, NR: uint8((i + 1) % 128)}}))
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, uint8(0), e.vs)
	require.Equal(t, uint8(0), e.va)
}

// TestEngine_PeerBusySuspendsNewTransmissions implements spec §4.B "honor
// peer-busy (RNR) by suspending new I transmissions": once RNR arrives, new
// SendUserData calls must not produce wire traffic until RR clears it.
func TestEngine_PeerBusySuspendsNewTransmissions(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()
	establish(t, e, trans)

	e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionRNR, NR: 0}}))
	time.Sleep(10 * time.Millisecond)
	sentBefore := len(trans.sent)

	e.SendUserData([]byte{0xAA})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, sentBefore, len(trans.sent), "no I-frame should be sent while peer is busy")
	require.Len(t, e.pending, 1)

	e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindS, SFunction: frame.SFunctionRR, NR: 0}}))
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, e.pending)
	last := trans.lastFrame(t)
	require.Equal(t, frame.KindI, last.Control.Kind)
	require.EqualValues(t, 0, last.Control.NS)
}

func TestEngine_OutOfOrderIFrameRejected(t *testing.T) {
	trans := &fakeTransport{}
	e := newTestEngine(trans)
	go e.Run()
	defer e.Close()
	establish(t, e, trans)

	e.Receive(mustEncode(t, frame.Frame{Control: frame.Control{Kind: frame.KindI, NS: 1, NR: 0}, Information: []byte{0xFF}}))
	time.Sleep(10 * time.Millisecond)
	last := trans.lastFrame(t)
	require.Equal(t, frame.KindS, last.Control.Kind)
	require.Equal(t, frame.SFunctionREJ, last.Control.SFunction)
}
