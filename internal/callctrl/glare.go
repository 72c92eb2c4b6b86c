// SPDX-License-Identifier: Apache-2.0

package callctrl

import "github.com/tdmsip/gateway/internal/q931"

// ResolveGlare implements spec §4.D's B-channel glare tie-break: the side
// with the higher point code / larger call reference wins; the loser clears
// with cause 44. localPointCode/remotePointCode are opaque comparable
// values the NFAS/ISUP layer supplies (point code for ISUP trunks, or a
// configured tie-break value for PRI).
func ResolveGlare(localPointCode, remotePointCode uint32, localCallRef, remoteCallRef []byte) (weWin bool) {
	if localPointCode != remotePointCode {
		return localPointCode > remotePointCode
	}
	return compareCallRef(localCallRef, remoteCallRef) > 0
}

func compareCallRef(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	default:
		return 0
	}
}

// LoseGlare drives a call into the release path with cause 44, for the side
// that lost a glare tie-break.
func (c *Call) LoseGlare() Outcome {
	return c.localClear(CauseGlareCollision)
}

// RejectCollidingSetup builds the RELEASE COMPLETE cause 81 response spec
// §4.D requires when a SETUP arrives on a call reference already in
// progress on this side (the side that did NOT originate the in-progress
// call rejects the new SETUP).
func RejectCollidingSetup(cr q931.CallReference) q931.Message {
	return q931.Message{
		CallRef:     cr,
		MessageType: q931.MsgReleaseComplete,
		IEs:         []q931.IE{q931.BuildCause(CauseInvalidCallRef, 0)},
	}
}
