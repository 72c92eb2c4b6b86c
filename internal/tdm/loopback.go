// SPDX-License-Identifier: Apache-2.0

package tdm

import "sync"

// LoopbackDriver is the deterministic test double for Driver (spec §9
// "Native binding stub"). Pairing two LoopbackDrivers with Connect wires
// each one's Send directly into the other's OnFrame callback, with no
// socket, goroutine scheduling nondeterminism, or real time involved.
type LoopbackDriver struct {
	mu      sync.Mutex
	peer    *LoopbackDriver
	OnFrame func([]byte)
	closed  bool
}

// NewLoopback builds an unconnected loopback driver.
func NewLoopback() *LoopbackDriver {
	return &LoopbackDriver{}
}

// Connect wires a and b so each one's Send delivers to the other's
// OnFrame.
func Connect(a, b *LoopbackDriver) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (d *LoopbackDriver) Send(octets []byte) error {
	d.mu.Lock()
	peer := d.peer
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return &DriverError{"send on closed loopback driver"}
	}
	if peer == nil {
		return &DriverError{"loopback driver not connected"}
	}
	peer.mu.Lock()
	cb := peer.OnFrame
	peer.mu.Unlock()
	cp := append([]byte(nil), octets...)
	if cb != nil {
		cb(cp)
	}
	return nil
}

func (d *LoopbackDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
