// SPDX-License-Identifier: Apache-2.0

package q931

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip_Setup(t *testing.T) {
	msg := Message{
		CallRef:     CallReference{Value: []byte{0x12, 0x34}, Flag: false},
		MessageType: MsgSetup,
		IEs: []IE{
			BuildNumber(IECallingPartyNumber, "5551001", 0x02, 0x01),
			BuildNumber(IECalledPartyNumber, "5551002", 0x02, 0x01),
			{Tag: 0x7F, Value: []byte{0xDE, 0xAD}}, // unknown TLV, must round-trip
			{Tag: 0x2A, Single: true},               // unknown single-octet IE
		},
	}

	wire, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, msg.CallRef, decoded.CallRef)
	require.Equal(t, msg.MessageType, decoded.MessageType)
	require.Len(t, decoded.IEs, len(msg.IEs))
	require.True(t, decoded.IEs[2].Unknown)
	require.True(t, decoded.IEs[3].Unknown)

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, wire, reencoded)

	calling, ok := ParseNumber(decoded.IEs, IECallingPartyNumber)
	require.True(t, ok)
	require.Equal(t, "5551001", calling)
}

func TestDecode_RejectsWrongProtocolDiscriminator(t *testing.T) {
	_, err := Decode([]byte{0x09, 0x00, 0x05})
	require.Error(t, err)
}

func TestDecode_TruncatedCallReference(t *testing.T) {
	_, err := Decode([]byte{ProtocolDiscriminator, 0x02, 0x01})
	require.Error(t, err)
}

func TestCauseIERoundTrip(t *testing.T) {
	ie := BuildCause(17, 0)
	msg := Message{CallRef: CallReference{Value: []byte{0x00, 0x07}}, MessageType: MsgDisconnect, IEs: []IE{ie}}
	wire, err := Encode(msg)
	require.NoError(t, err)
	decoded, err := Decode(wire)
	require.NoError(t, err)
	cause, ok := ParseCause(decoded.IEs)
	require.True(t, ok)
	require.EqualValues(t, 17, cause)
}
