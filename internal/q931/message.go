// SPDX-License-Identifier: Apache-2.0

// Package q931 implements the ITU-T Q.931 message codec: protocol
// discriminator, call reference, message type, and TLV/single-octet
// information elements. The parser tolerates and preserves unknown IEs
// byte-for-byte so a proxying gateway never silently drops them (spec §4.C).
package q931

import "fmt"

// ProtocolDiscriminator is the fixed first octet of every Q.931 message.
const ProtocolDiscriminator = 0x08

// MessageType enumerates the Q.931 message types this gateway recognizes
// (spec §4.C lists the minimum set; unknown types still round-trip via
// their raw byte).
type MessageType uint8

const (
	MsgSetup             MessageType = 0x05
	MsgCallProceeding    MessageType = 0x02
	MsgAlerting          MessageType = 0x01
	MsgConnect           MessageType = 0x07
	MsgConnectAck        MessageType = 0x0F
	MsgDisconnect        MessageType = 0x45
	MsgRelease           MessageType = 0x4D
	MsgReleaseComplete   MessageType = 0x5A
	MsgStatus            MessageType = 0x7D
	MsgStatusEnquiry     MessageType = 0x75
	MsgSetupAck          MessageType = 0x0D
	MsgCallProceedingAck MessageType = 0x02
)

func (m MessageType) String() string {
	switch m {
	case MsgSetup:
		return "SETUP"
	case MsgCallProceeding:
		return "CALL_PROCEEDING"
	case MsgAlerting:
		return "ALERTING"
	case MsgConnect:
		return "CONNECT"
	case MsgConnectAck:
		return "CONNECT_ACK"
	case MsgDisconnect:
		return "DISCONNECT"
	case MsgRelease:
		return "RELEASE"
	case MsgReleaseComplete:
		return "RELEASE_COMPLETE"
	case MsgStatus:
		return "STATUS"
	case MsgStatusEnquiry:
		return "STATUS_ENQUIRY"
	case MsgSetupAck:
		return "SETUP_ACK"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(m))
	}
}

// CallReference identifies a call within a D-channel scope. Flag is true
// when this side did NOT originate the call (the "response" direction of
// the flag bit per Q.931 §4.3).
type CallReference struct {
	Value []byte // 1-2 octets, high bit of Value[0] excluded (Flag carries it)
	Flag  bool
}

// IE is either a single-octet IE (Tag's high bit set, no Length/Value) or a
// TLV IE. Unknown = true marks an IE the codec didn't recognize by tag but
// preserved verbatim, per spec §4.C.
type IE struct {
	Tag     uint8
	Single  bool
	Value   []byte
	Unknown bool
}

// Message is a fully decoded Q.931 message.
type Message struct {
	CallRef     CallReference
	MessageType MessageType
	IEs         []IE
}
