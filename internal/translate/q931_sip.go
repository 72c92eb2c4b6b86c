// SPDX-License-Identifier: Apache-2.0

package translate

import (
	"github.com/tdmsip/gateway/internal/media"
	"github.com/tdmsip/gateway/internal/q931"
	"github.com/tdmsip/gateway/internal/sip"
)

const causeNormalClearing uint8 = 16

func defaultPayloadTypes() []media.PayloadType {
	return []media.PayloadType{media.PCMA, media.PCMU, media.TelephoneEvent}
}

func sdpOffer(ctx *TranslationContext) []byte {
	return media.Build(media.Description{
		ConnectionIP: ctx.LocalIP,
		Port:         ctx.RTPPort,
		PayloadTypes: defaultPayloadTypes(),
		Direction:    media.DirectionSendRecv,
	})
}

// Q931ToSIP implements the Q.931 -> SIP direction of spec §4.G.
func Q931ToSIP(msg q931.Message, ctx *TranslationContext) (sip.Message, error) {
	switch msg.MessageType {
	case q931.MsgSetup:
		return setupToInvite(msg, ctx), nil
	case q931.MsgCallProceeding:
		return sip.Message{StatusCode: 100, ReasonPhrase: "Trying"}, nil
	case q931.MsgAlerting:
		return sip.Message{StatusCode: 180, ReasonPhrase: "Ringing"}, nil
	case q931.MsgConnect:
		return connectToOK(ctx), nil
	case q931.MsgDisconnect, q931.MsgRelease:
		return releaseToSIP(msg, ctx), nil
	default:
		return sip.Message{}, &RuleError{Kind: ErrNoRuleForCause, Msg: "no SIP mapping for this Q.931 message type"}
	}
}

func setupToInvite(msg q931.Message, ctx *TranslationContext) sip.Message {
	calling, _ := q931.ParseNumber(msg.IEs, q931.IECallingPartyNumber)
	called, _ := q931.ParseNumber(msg.IEs, q931.IECalledPartyNumber)
	ctx.CallingNumber, ctx.CalledNumber = calling, called

	var hdrs sip.Headers
	hdrs.Add("From", "<sip:"+calling+"@"+ctx.LocalIP+">")
	hdrs.Add("To", "<sip:"+called+"@"+ctx.LocalIP+">")
	hdrs.Add("Content-Type", "application/sdp")

	return sip.Message{
		Method:      "INVITE",
		RequestURI:  "sip:" + called + "@" + ctx.LocalIP,
		Headers:     hdrs,
		Body:        sdpOffer(ctx),
		ContentType: "application/sdp",
	}
}

func connectToOK(ctx *TranslationContext) sip.Message {
	var hdrs sip.Headers
	hdrs.Add("Content-Type", "application/sdp")
	return sip.Message{
		StatusCode:   200,
		ReasonPhrase: "OK",
		Headers:      hdrs,
		Body:         sdpOffer(ctx),
		ContentType:  "application/sdp",
	}
}

// releaseToSIP implements spec §4.G: "DISCONNECT/RELEASE with cause C ->
// either BYE (if C=16) or the mapped 4xx/5xx/6xx response using the
// variant's cause table."
func releaseToSIP(msg q931.Message, ctx *TranslationContext) sip.Message {
	cause, ok := q931.ParseCause(msg.IEs)
	if !ok {
		cause = 31
	}
	if cause == causeNormalClearing {
		return sip.Message{Method: "BYE"}
	}
	entry, found := ctx.Rules.Causes.ToSIP(cause)
	if !found {
		return sip.Message{StatusCode: 500, ReasonPhrase: "Server Internal Error"}
	}
	return sip.Message{StatusCode: entry.SIPStatus, ReasonPhrase: entry.Reason}
}

// SIPToQ931 implements the SIP -> Q.931 direction of spec §4.G, symmetric
// with Q931ToSIP.
func SIPToQ931(msg sip.Message, ctx *TranslationContext) (q931.Message, error) {
	switch {
	case msg.Method == "INVITE":
		return inviteToSetup(msg, ctx), nil
	case msg.StatusCode == 100:
		return q931.Message{MessageType: q931.MsgCallProceeding}, nil
	case msg.StatusCode == 180 || msg.StatusCode == 183:
		return q931.Message{MessageType: q931.MsgAlerting}, nil
	case msg.StatusCode == 200:
		return q931.Message{MessageType: q931.MsgConnect}, nil
	case msg.Method == "BYE":
		return q931.Message{MessageType: q931.MsgDisconnect, IEs: []q931.IE{q931.BuildCause(causeNormalClearing, 0)}}, nil
	case msg.StatusCode >= 400:
		cause := statusToCause(msg.StatusCode, ctx)
		return q931.Message{MessageType: q931.MsgRelease, IEs: []q931.IE{q931.BuildCause(cause, 0)}}, nil
	default:
		return q931.Message{}, &RuleError{Kind: ErrNoRuleForCause, Msg: "no Q.931 mapping for this SIP message"}
	}
}

func inviteToSetup(msg sip.Message, ctx *TranslationContext) q931.Message {
	var ies []q931.IE
	if ctx.CallingNumber != "" {
		ies = append(ies, q931.BuildNumber(q931.IECallingPartyNumber, ctx.CallingNumber, 0, 1))
	}
	if ctx.CalledNumber != "" {
		ies = append(ies, q931.BuildNumber(q931.IECalledPartyNumber, ctx.CalledNumber, 0, 1))
	}
	return q931.Message{MessageType: q931.MsgSetup, IEs: ies}
}

// statusToCause implements spec §4.G "SIP status codes map back to Q.850
// causes via the variant's inverse table (e.g., 486->17, 480->19, 404->1,
// 503->34)"; an unmapped status defaults to cause 31 outbound per the edge
// case list.
func statusToCause(status int, ctx *TranslationContext) uint8 {
	entry, ok := ctx.Rules.Causes.ToCause(status)
	if !ok {
		return 31
	}
	return entry.Cause
}
