// SPDX-License-Identifier: Apache-2.0

package translate

import (
	"bytes"
	"fmt"

	"github.com/tdmsip/gateway/internal/isup"
	"github.com/tdmsip/gateway/internal/sip"
)

const multipartBoundary = "gw-isup-boundary"

// ISUPToSIPT implements spec §4.G's ISUP -> SIP-T direction: IAM becomes an
// INVITE with a multipart/mixed body (SDP + the original IAM octets),
// ACM/ANM/REL map to 183/200/BYE. call carries the direction and answer
// state relToBye needs to pick BYE vs a 486 response (spec §8 scenario 4).
func ISUPToSIPT(msg isup.Message, ctx *TranslationContext, call *isup.Call) (sip.Message, error) {
	switch msg.Type {
	case isup.MsgIAM:
		return iamToInvite(msg, ctx), nil
	case isup.MsgACM:
		return sip.Message{StatusCode: 183, ReasonPhrase: "Session Progress"}, nil
	case isup.MsgANM:
		return sip.Message{StatusCode: 200, ReasonPhrase: "OK"}, nil
	case isup.MsgREL:
		return relToBye(msg, call), nil
	default:
		return sip.Message{}, &RuleError{Kind: ErrNoRuleForCause, Msg: "no SIP mapping for this ISUP message type"}
	}
}

func iamToInvite(msg isup.Message, ctx *TranslationContext) sip.Message {
	body := buildMultipartMixed(sdpOffer(ctx), isup.Encode(msg))

	var hdrs sip.Headers
	hdrs.Add("Content-Type", `multipart/mixed;boundary="`+multipartBoundary+`"`)
	return sip.Message{
		Method:      "INVITE",
		RequestURI:  "sip:" + ctx.CalledNumber + "@" + ctx.LocalIP,
		Headers:     hdrs,
		Body:        body,
		ContentType: "multipart/mixed",
	}
}

// buildMultipartMixed wraps an SDP part and the raw ISUP octets in a
// multipart/mixed body, the ISUP part carrying
// content-disposition=signal;handling=required per spec §4.G.
func buildMultipartMixed(sdp, isupOctets []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "--%s\r\n", multipartBoundary)
	fmt.Fprintf(&b, "Content-Type: application/sdp\r\n\r\n")
	b.Write(sdp)
	fmt.Fprintf(&b, "\r\n--%s\r\n", multipartBoundary)
	fmt.Fprintf(&b, "Content-Type: application/ISUP\r\n")
	fmt.Fprintf(&b, "Content-Disposition: signal;handling=required\r\n\r\n")
	b.Write(isupOctets)
	fmt.Fprintf(&b, "\r\n--%s--\r\n", multipartBoundary)
	return b.Bytes()
}

// relToBye implements spec §4.G / §8 scenario 4: "REL -> BYE with a
// Reason: Q.850;cause=N;text=... header. But if the SIP side initiated the
// call, the equivalent is a 486 Busy Here response instead" -- that applies
// only before the call is answered, since after ANM a SIP dialog already
// exists and only BYE can end it regardless of who originated the call.
func relToBye(msg isup.Message, call *isup.Call) sip.Message {
	cause, ok := isup.ParseCauseParam(msg.Optional)
	if !ok {
		cause = 31
	}
	if call != nil && call.Direction == isup.DirectionOutgoing && call.State != isup.StateAnswered {
		return sip.Message{StatusCode: 486, ReasonPhrase: "Busy Here"}
	}
	var hdrs sip.Headers
	hdrs.Add("Reason", fmt.Sprintf(`Q.850;cause=%d;text="%s"`, cause, causeText(cause)))
	return sip.Message{Method: "BYE", Headers: hdrs}
}

// SIPToISUP implements the SIP -> ISUP direction, symmetric with
// ISUPToSIPT. cic must already be allocated by the caller (isup.Handler
// owns CIC allocation, spec §5 "single-writer").
func SIPToISUP(msg sip.Message, ctx *TranslationContext, cic int) (isup.Message, error) {
	switch {
	case msg.Method == "INVITE":
		return isup.Message{Type: isup.MsgIAM, CIC: uint16(cic)}, nil
	case msg.StatusCode == 183:
		return isup.Message{Type: isup.MsgACM, CIC: uint16(cic)}, nil
	case msg.StatusCode == 200:
		return isup.Message{Type: isup.MsgANM, CIC: uint16(cic)}, nil
	case msg.Method == "BYE" || msg.StatusCode >= 400:
		cause := byeToISUPCause(msg, ctx)
		return isup.Message{Type: isup.MsgREL, CIC: uint16(cic), Optional: []isup.Parameter{isup.BuildCauseParam(cause, 0)}}, nil
	default:
		return isup.Message{}, &RuleError{Kind: ErrNoRuleForCause, Msg: "no ISUP mapping for this SIP message"}
	}
}

func byeToISUPCause(msg sip.Message, ctx *TranslationContext) uint8 {
	if msg.Method == "BYE" {
		return causeNormalClearing
	}
	return statusToCause(msg.StatusCode, ctx)
}

// causeText gives the illustrative reason text spec §8 scenario 4 shows
// for cause 17; other causes fall back to a generic label rather than
// guessing at exact ITU wording.
func causeText(cause uint8) string {
	switch cause {
	case 17:
		return "User busy"
	case 16:
		return "Normal call clearing"
	case 31:
		return "Normal, unspecified"
	default:
		return "Cause " + fmt.Sprint(cause)
	}
}
