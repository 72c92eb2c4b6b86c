// SPDX-License-Identifier: Apache-2.0

// Package media builds and parses the SDP bodies the translator attaches to
// SIP messages (spec §6 "Upstream interface — media collaborator"). The
// core never emits or reads RTP payloads; this package only produces the
// session-description text describing where they would go.
package media

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// PayloadType is one RTP payload type advertised in an SDP offer/answer.
type PayloadType struct {
	Number    int
	Name      string
	ClockRate int
}

// Payload types spec §6 requires at minimum, plus the optional clearmode.
var (
	PCMU           = PayloadType{Number: 0, Name: "PCMU", ClockRate: 8000}
	PCMA           = PayloadType{Number: 8, Name: "PCMA", ClockRate: 8000}
	TelephoneEvent = PayloadType{Number: 101, Name: "telephone-event", ClockRate: 8000}
	Clearmode      = PayloadType{Number: 97, Name: "CLEARMODE", ClockRate: 8000}
)

// Direction is the SDP a= direction attribute.
type Direction int

const (
	DirectionSendRecv Direction = iota
	DirectionSendOnly
	DirectionRecvOnly
	DirectionInactive
)

func (d Direction) attr() string {
	switch d {
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "sendrecv"
	}
}

// Description is the subset of SDP the translator cares about: one audio
// media line with its payload types (spec §6).
type Description struct {
	ConnectionIP string
	Port         int
	PayloadTypes []PayloadType
	Direction    Direction
}

// Build renders a Description as an SDP body.
func Build(d Description) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- 0 0 IN IP4 %s\r\n", d.ConnectionIP)
	fmt.Fprintf(&b, "s=-\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", d.ConnectionIP)
	fmt.Fprintf(&b, "t=0 0\r\n")

	nums := make([]string, len(d.PayloadTypes))
	for i, pt := range d.PayloadTypes {
		nums[i] = strconv.Itoa(pt.Number)
	}
	fmt.Fprintf(&b, "m=audio %d RTP/AVP %s\r\n", d.Port, strings.Join(nums, " "))
	for _, pt := range d.PayloadTypes {
		fmt.Fprintf(&b, "a=rtpmap:%d %s/%d\r\n", pt.Number, pt.Name, pt.ClockRate)
	}
	fmt.Fprintf(&b, "a=%s\r\n", d.Direction.attr())
	return b.Bytes()
}

// ParseError signals a body that could not be parsed as SDP (spec §4.G
// edge case: "message body present but not parseable as SDP: translated
// call still proceeds; media negotiation deferred").
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return e.Msg }

// Parse extracts the fields Build produces. It intentionally understands
// only the single-audio-m-line shape this gateway emits; anything else is a
// ParseError, which callers treat as "no SDP yet" rather than a hard
// failure.
func Parse(body []byte) (Description, error) {
	var d Description
	lines := strings.Split(string(body), "\r\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "c=IN IP4 "):
			d.ConnectionIP = strings.TrimPrefix(line, "c=IN IP4 ")
		case strings.HasPrefix(line, "m=audio "):
			fields := strings.Fields(strings.TrimPrefix(line, "m=audio "))
			if len(fields) < 2 {
				return Description{}, &ParseError{"malformed m=audio line"}
			}
			port, err := strconv.Atoi(fields[0])
			if err != nil {
				return Description{}, &ParseError{"non-numeric port in m=audio line"}
			}
			d.Port = port
			for _, ptNum := range fields[2:] {
				n, err := strconv.Atoi(ptNum)
				if err != nil {
					continue
				}
				d.PayloadTypes = append(d.PayloadTypes, payloadTypeByNumber(n))
			}
		case strings.HasPrefix(line, "a=sendonly"):
			d.Direction = DirectionSendOnly
		case strings.HasPrefix(line, "a=recvonly"):
			d.Direction = DirectionRecvOnly
		case strings.HasPrefix(line, "a=inactive"):
			d.Direction = DirectionInactive
		}
	}
	if d.ConnectionIP == "" || d.Port == 0 {
		return Description{}, &ParseError{"missing c= or m=audio line"}
	}
	return d, nil
}

func payloadTypeByNumber(n int) PayloadType {
	switch n {
	case PCMU.Number:
		return PCMU
	case PCMA.Number:
		return PCMA
	case TelephoneEvent.Number:
		return TelephoneEvent
	case Clearmode.Number:
		return Clearmode
	default:
		return PayloadType{Number: n, Name: fmt.Sprintf("unknown-%d", n), ClockRate: 8000}
	}
}
