// SPDX-License-Identifier: Apache-2.0

package sigtran

import "sync"

// LoopbackAssociation is the deterministic test double for Association,
// paired the same way internal/tdm.LoopbackDriver is.
type LoopbackAssociation struct {
	mu      sync.Mutex
	peer    *LoopbackAssociation
	OnFrame func([]byte)
	closed  bool
}

func NewLoopback() *LoopbackAssociation {
	return &LoopbackAssociation{}
}

// Connect wires a and b so each one's Send delivers to the other's OnFrame.
func Connect(a, b *LoopbackAssociation) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (a *LoopbackAssociation) Send(octets []byte) error {
	a.mu.Lock()
	peer := a.peer
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return &AssociationError{"send on closed loopback association"}
	}
	if peer == nil {
		return &AssociationError{"loopback association not connected"}
	}
	peer.mu.Lock()
	cb := peer.OnFrame
	peer.mu.Unlock()
	if cb != nil {
		cb(append([]byte(nil), octets...))
	}
	return nil
}

func (a *LoopbackAssociation) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
