// SPDX-License-Identifier: Apache-2.0

package q931

import "fmt"

// ProtocolError is a typed Q.931 codec/protocol failure (spec §7 "Protocol"
// error kind).
type ProtocolError struct {
	Kind ProtocolErrorKind
	Msg  string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

type ProtocolErrorKind int

const (
	ErrUnknownMessageType ProtocolErrorKind = iota
	ErrIncompatibleState
	ErrMandatoryIEMissing
	ErrMalformed
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case ErrUnknownMessageType:
		return "UnknownMessageType"
	case ErrIncompatibleState:
		return "IncompatibleState"
	case ErrMandatoryIEMissing:
		return "MandatoryIeMissing"
	default:
		return "Malformed"
	}
}

// Decode parses a raw Q.931 message: [PD][CallRefLen|CallRefValue][MsgType][IEs...].
func Decode(octets []byte) (Message, error) {
	if len(octets) < 3 {
		return Message{}, &ProtocolError{ErrMalformed, "message shorter than minimum header"}
	}
	if octets[0] != ProtocolDiscriminator {
		return Message{}, &ProtocolError{ErrMalformed, fmt.Sprintf("unexpected protocol discriminator 0x%02x", octets[0])}
	}

	crLen := int(octets[1] & 0x0F)
	pos := 2
	if len(octets) < pos+crLen+1 {
		return Message{}, &ProtocolError{ErrMalformed, "truncated call reference"}
	}

	var cr CallReference
	if crLen > 0 {
		raw := append([]byte(nil), octets[pos:pos+crLen]...)
		cr.Flag = raw[0]&0x80 != 0
		raw[0] &^= 0x80
		cr.Value = raw
	}
	pos += crLen

	msgType := MessageType(octets[pos])
	pos++

	ies, err := decodeIEs(octets[pos:])
	if err != nil {
		return Message{}, err
	}

	return Message{CallRef: cr, MessageType: msgType, IEs: ies}, nil
}

func decodeIEs(b []byte) ([]IE, error) {
	var ies []IE
	i := 0
	for i < len(b) {
		tag := b[i]
		if tag&0x80 != 0 {
			// Single-octet IE.
			ies = append(ies, IE{Tag: tag, Single: true, Unknown: !isKnownSingleOctetIE(tag)})
			i++
			continue
		}
		if i+1 >= len(b) {
			return nil, &ProtocolError{ErrMalformed, "truncated TLV IE header"}
		}
		length := int(b[i+1])
		if i+2+length > len(b) {
			return nil, &ProtocolError{ErrMalformed, "truncated TLV IE value"}
		}
		value := append([]byte(nil), b[i+2:i+2+length]...)
		ies = append(ies, IE{Tag: tag, Value: value, Unknown: !isKnownTLVTag(tag)})
		i += 2 + length
	}
	return ies, nil
}

func isKnownTLVTag(tag uint8) bool {
	switch tag {
	case IEBearerCapability, IECause, IEChannelIdentification, IEProgressIndicator,
		IECallingPartyNumber, IECalledPartyNumber:
		return true
	default:
		return false
	}
}

func isKnownSingleOctetIE(tag uint8) bool {
	return tag == IESendingComplete
}

// Encode serializes a Message back to the wire, writing IEs in the order
// given so proxied unknown IEs preserve their position (spec §6, §8
// round-trip law).
func Encode(m Message) ([]byte, error) {
	out := make([]byte, 0, 32)
	out = append(out, ProtocolDiscriminator)

	crLen := len(m.CallRef.Value)
	out = append(out, byte(crLen&0x0F))
	if crLen > 0 {
		raw := append([]byte(nil), m.CallRef.Value...)
		if m.CallRef.Flag {
			raw[0] |= 0x80
		} else {
			raw[0] &^= 0x80
		}
		out = append(out, raw...)
	}

	out = append(out, byte(m.MessageType))

	for _, ie := range m.IEs {
		if ie.Single {
			out = append(out, ie.Tag|0x80)
			continue
		}
		out = append(out, ie.Tag&0x7F, byte(len(ie.Value)))
		out = append(out, ie.Value...)
	}

	return out, nil
}
