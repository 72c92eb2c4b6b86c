// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeEncodeRoundTrip_IFrame(t *testing.T) {
	f := Frame{
		Address:     Address{SAPI: 0, CR: true, TEI: 5},
		Control:     Control{Kind: KindI, NS: 3, NR: 1, PF: false},
		Information: []byte{0x08, 0x02, 0x00, 0x81, 0x05},
	}
	wire, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(wire, DefaultN201)
	require.NoError(t, err)
	require.Equal(t, f.Address, decoded.Address)
	require.Equal(t, f.Control, decoded.Control)
	require.Equal(t, f.Information, decoded.Information)

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, wire, reencoded)
}

func TestDecodeEncodeRoundTrip_SAndUFrames(t *testing.T) {
	cases := []Frame{
		{Address: Address{SAPI: 0, TEI: 1}, Control: Control{Kind: KindS, SFunction: SFunctionRR, NR: 4, PF: true}},
		{Address: Address{SAPI: 0, TEI: 1}, Control: Control{Kind: KindS, SFunction: SFunctionRNR, NR: 0}},
		{Address: Address{SAPI: 0, TEI: 1}, Control: Control{Kind: KindS, SFunction: SFunctionREJ, NR: 2}},
		{Address: Address{SAPI: 0, TEI: 127}, Control: Control{Kind: KindU, UFunction: UFunctionSABME, PF: true}},
		{Address: Address{SAPI: 63, TEI: 0}, Control: Control{Kind: KindU, UFunction: UFunctionUA, PF: true}},
		{Address: Address{SAPI: 0, TEI: 1}, Control: Control{Kind: KindU, UFunction: UFunctionDM}},
		{Address: Address{SAPI: 0, TEI: 1}, Control: Control{Kind: KindU, UFunction: UFunctionDISC, PF: true}},
	}
	for _, f := range cases {
		wire, err := Encode(f)
		require.NoError(t, err)
		decoded, err := Decode(wire, DefaultN201)
		require.NoError(t, err)
		require.Equal(t, f.Address, decoded.Address)
		require.Equal(t, f.Control, decoded.Control)
	}
}

func TestDecode_BadFCS(t *testing.T) {
	f := Frame{
		Address: Address{SAPI: 0, TEI: 1},
		Control: Control{Kind: KindU, UFunction: UFunctionUA, PF: true},
	}
	wire, err := Encode(f)
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF

	_, err = Decode(wire, DefaultN201)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ErrBadFCS, fe.Kind)
}

func TestDecode_TooShort(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01}, DefaultN201)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ErrTooShort, fe.Kind)
}

func TestDecode_BadAddressEABits(t *testing.T) {
	// EA0 must be 0; set it to 1 to trigger BadAddress.
	octets := []byte{0x01, 0x01, 0x63, 0x00, 0x00}
	_, err := Decode(octets, DefaultN201)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ErrBadAddress, fe.Kind)
}

func TestDecode_InformationExceedsN201(t *testing.T) {
	f := Frame{
		Address:     Address{SAPI: 0, TEI: 1},
		Control:     Control{Kind: KindI, NS: 0, NR: 0},
		Information: make([]byte, 10),
	}
	wire, err := Encode(f)
	require.NoError(t, err)
	_, err = Decode(wire, 5)
	require.Error(t, err)
}

// TestRoundTripProperty exercises the round-trip law from spec §8 against
// randomly generated well-formed I-frames: encode(decode(bytes)) == bytes.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sapi := rapid.UintRange(0, 63).Draw(t, "sapi")
		tei := rapid.UintRange(0, 127).Draw(t, "tei")
		ns := rapid.UintRange(0, 127).Draw(t, "ns")
		nr := rapid.UintRange(0, 127).Draw(t, "nr")
		pf := rapid.Bool().Draw(t, "pf")
		info := rapid.SliceOfN(rapid.Byte(), 0, 200).Draw(t, "info")

		f := Frame{
			Address:     Address{SAPI: uint8(sapi), TEI: uint8(tei)},
			Control:     Control{Kind: KindI, NS: uint8(ns), NR: uint8(nr), PF: pf},
			Information: info,
		}
		wire, err := Encode(f)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := Decode(wire, DefaultN201)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		reencoded, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if string(wire) != string(reencoded) {
			t.Fatalf("round trip mismatch: %x != %x", wire, reencoded)
		}
	})
}
