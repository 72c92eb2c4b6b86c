// SPDX-License-Identifier: Apache-2.0

// Package callctrl implements the Q.931 call-control state machine (spec
// §4.D): one instance per call reference, driven by Q.931 messages from the
// Q.931 codec and by the five call timers T301/T303/T305/T308/T310.
package callctrl

// State is a Q.931 call state (numbering per Q.931 §5, spec §4.D).
type State int

const (
	StateNull                   State = 0
	StateCallInitiated          State = 1
	StateOverlapSending         State = 2
	StateOutgoingCallProceeding State = 3
	StateCallDelivered          State = 4
	StateCallPresent            State = 6
	StateCallReceived           State = 7
	StateConnectRequest         State = 8
	StateIncomingCallProceeding State = 9
	StateActive                 State = 10
	StateDisconnectRequest      State = 11
	StateDisconnectIndication   State = 12
	StateReleaseRequest         State = 19
	StateOverlapReceiving       State = 25
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "Null"
	case StateCallInitiated:
		return "CallInitiated"
	case StateOverlapSending:
		return "OverlapSending"
	case StateOutgoingCallProceeding:
		return "OutgoingCallProceeding"
	case StateCallDelivered:
		return "CallDelivered"
	case StateCallPresent:
		return "CallPresent"
	case StateCallReceived:
		return "CallReceived"
	case StateConnectRequest:
		return "ConnectRequest"
	case StateIncomingCallProceeding:
		return "IncomingCallProceeding"
	case StateActive:
		return "Active"
	case StateDisconnectRequest:
		return "DisconnectRequest"
	case StateDisconnectIndication:
		return "DisconnectIndication"
	case StateReleaseRequest:
		return "ReleaseRequest"
	case StateOverlapReceiving:
		return "OverlapReceiving"
	default:
		return "unknown"
	}
}

// Cause values this package assigns directly (spec §4.D, §7).
const (
	CauseUnallocatedNumber   uint8 = 1
	CauseNormalClearing      uint8 = 16
	CauseUserBusy            uint8 = 17
	CauseNoCircuitAvailable  uint8 = 34
	CauseNormalUnspecified   uint8 = 31
	CauseTemporaryFailure    uint8 = 41
	CauseGlareCollision      uint8 = 44
	CauseRecoveryOnTimerExp  uint8 = 102
	CauseInvalidCallRef      uint8 = 81
	CauseIncompatibleDestSt  uint8 = 101
)
