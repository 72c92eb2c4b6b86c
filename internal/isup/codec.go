// SPDX-License-Identifier: Apache-2.0

package isup

import "fmt"

// CodecError is a typed ISUP decode failure.
type CodecError struct {
	Msg string
}

func (e *CodecError) Error() string { return e.Msg }

// Decode parses a raw SIGTRAN-delivered ISUP message: [MsgType 1][CIC
// 2, 14 bits][fixed/variable/optional parts]. The fixed/mandatory-variable
// split is message-type dependent; this codec keeps the fixed part as an
// opaque blob sized by fixedLen (message-type specific, spec §4.E lists
// IAM/ACM/ANM/REL/RLC) and parses the optional part as TLVs.
func Decode(octets []byte, fixedLen int) (Message, error) {
	if len(octets) < 3 {
		return Message{}, &CodecError{"message shorter than minimum header"}
	}
	msgType := MessageType(octets[0])
	cic := uint16(octets[1]) | (uint16(octets[2]&0x3F) << 8)

	pos := 3
	if len(octets) < pos+fixedLen {
		return Message{}, &CodecError{fmt.Sprintf("truncated fixed part, want %d have %d", fixedLen, len(octets)-pos)}
	}
	fixed := append([]byte(nil), octets[pos:pos+fixedLen]...)
	pos += fixedLen

	optional, err := decodeOptional(octets[pos:])
	if err != nil {
		return Message{}, err
	}

	return Message{Type: msgType, CIC: cic, Fixed: fixed, Optional: optional}, nil
}

// DecodeAuto decodes octets without requiring the caller to already know
// the message type's fixed-part length, by peeking the type octet and
// consulting FixedPartLength.
func DecodeAuto(octets []byte) (Message, error) {
	if len(octets) == 0 {
		return Message{}, &CodecError{"empty message"}
	}
	return Decode(octets, FixedPartLength(MessageType(octets[0])))
}

func decodeOptional(b []byte) ([]Parameter, error) {
	var params []Parameter
	i := 0
	for i < len(b) {
		if b[i] == 0x00 { // end-of-optional-parameters marker
			break
		}
		if i+1 >= len(b) {
			return nil, &CodecError{"truncated optional parameter header"}
		}
		tag := b[i]
		length := int(b[i+1])
		if i+2+length > len(b) {
			return nil, &CodecError{"truncated optional parameter value"}
		}
		value := append([]byte(nil), b[i+2:i+2+length]...)
		params = append(params, Parameter{Tag: tag, Value: value})
		i += 2 + length
	}
	return params, nil
}

// Encode serializes a Message back to the wire.
func Encode(m Message) []byte {
	out := make([]byte, 0, 8+len(m.Fixed))
	out = append(out, byte(m.Type))
	out = append(out, byte(m.CIC&0xFF), byte((m.CIC>>8)&0x3F))
	out = append(out, m.Fixed...)
	for _, p := range m.Optional {
		out = append(out, p.Tag, byte(len(p.Value)))
		out = append(out, p.Value...)
	}
	if len(m.Optional) > 0 {
		out = append(out, 0x00)
	}
	return out
}

// Q.850 cause parameter tag carried in REL (spec §4.E "REL includes a Q.850
// cause parameter").
const ParamCauseIndicators uint8 = 0x12

// BuildCauseParam packs a Q.850 cause indicators parameter.
func BuildCauseParam(cause uint8, location uint8) Parameter {
	return Parameter{Tag: ParamCauseIndicators, Value: []byte{0x80 | (location & 0x0F), 0x80 | (cause & 0x7F)}}
}

// ParseCauseParam extracts the cause value from a REL's optional parameters.
func ParseCauseParam(params []Parameter) (cause uint8, ok bool) {
	for _, p := range params {
		if p.Tag == ParamCauseIndicators && len(p.Value) >= 2 {
			return p.Value[1] & 0x7F, true
		}
	}
	return 0, false
}
