// SPDX-License-Identifier: Apache-2.0

package q931

// Known IE tags this gateway builds and interprets directly. Any tag not in
// this file is still parsed structurally (single vs TLV) and forwarded
// unchanged (spec §4.C, §6 "preserve unknown tags byte-for-byte").
const (
	IEBearerCapability     uint8 = 0x04
	IECause                uint8 = 0x08
	IEChannelIdentification uint8 = 0x18
	IEProgressIndicator    uint8 = 0x1E
	IECallingPartyNumber   uint8 = 0x6C
	IECalledPartyNumber    uint8 = 0x70
	IESendingComplete      uint8 = 0xA1 // single-octet IE
)

// BuildCause packs a Q.850 cause IE: coding standard/location octet then
// cause value octet with extension bits set (spec §7, §8 scenario 4).
func BuildCause(cause uint8, location uint8) IE {
	return IE{
		Tag: IECause,
		Value: []byte{
			0x80 | (location & 0x0F), // ext bit, coding standard=ITU(0), location
			0x80 | (cause & 0x7F),    // ext bit, cause value
		},
	}
}

// ParseCause extracts the Q.850 cause value from a cause IE, if present.
func ParseCause(ies []IE) (cause uint8, ok bool) {
	for _, ie := range ies {
		if ie.Tag == IECause && len(ie.Value) >= 2 {
			return ie.Value[1] & 0x7F, true
		}
	}
	return 0, false
}

// BuildNumber packs a calling/called party number IE: type of
// number/numbering plan octet then the digits as IA5 ASCII.
func BuildNumber(tag uint8, digits string, ton, plan uint8) IE {
	v := make([]byte, 0, 1+len(digits))
	v = append(v, 0x80|(ton<<4)|(plan&0x0F))
	v = append(v, []byte(digits)...)
	return IE{Tag: tag, Value: v}
}

// ParseNumber extracts the digit string from a number IE.
func ParseNumber(ies []IE, tag uint8) (digits string, ok bool) {
	for _, ie := range ies {
		if ie.Tag == tag && len(ie.Value) >= 1 {
			return string(ie.Value[1:]), true
		}
	}
	return "", false
}

// BuildProgressIndicator packs a progress indicator IE.
func BuildProgressIndicator(description uint8) IE {
	return IE{Tag: IEProgressIndicator, Value: []byte{0x80, 0x80 | (description & 0x7F)}}
}

// ParseProgressIndicator extracts the description octet from a progress
// indicator IE, if present.
func ParseProgressIndicator(ies []IE) (description uint8, ok bool) {
	for _, ie := range ies {
		if ie.Tag == IEProgressIndicator && len(ie.Value) >= 2 {
			return ie.Value[1] & 0x7F, true
		}
	}
	return 0, false
}

// FindIE returns the first IE with the given tag.
func FindIE(ies []IE, tag uint8) (IE, bool) {
	for _, ie := range ies {
		if ie.Tag == tag {
			return ie, true
		}
	}
	return IE{}, false
}
