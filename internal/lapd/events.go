// SPDX-License-Identifier: Apache-2.0

package lapd

// EventKind tags the variants an Engine can emit upward. Grounded on the
// pack's preference (spec §9 DESIGN NOTES) for tagged variants over
// string-keyed events.
type EventKind int

const (
	EventEstablished EventKind = iota
	EventReleased
	EventError
	EventData
)

// ErrorKind enumerates the link-layer failure modes from spec §7.
type ErrorKind int

const (
	ErrEstablishmentFailed ErrorKind = iota
	ErrLinkLost
	ErrPeerRejectedFRMR
)

func (k ErrorKind) String() string {
	switch k {
	case ErrEstablishmentFailed:
		return "EstablishmentFailed"
	case ErrLinkLost:
		return "LinkLost"
	case ErrPeerRejectedFRMR:
		return "PeerRejected(FRMR)"
	default:
		return "unknown"
	}
}

// Event is the single tagged-union type an Engine sends on its Events()
// channel. Only the field(s) relevant to Kind are populated. Unacked carries
// the payloads still in the retransmit queue at the moment a Released/Error
// event fires — the caller's only chance to recover them, since the queue is
// wiped as part of going down.
type Event struct {
	Kind    EventKind
	Error   ErrorKind
	Data    []byte
	Unacked [][]byte
}
