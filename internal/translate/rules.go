// SPDX-License-Identifier: Apache-2.0

// Package translate implements the Protocol Translator (spec §4.G):
// stateless, per-call mapping between Q.931/ISUP and SIP, driven by an
// immutable rule set chosen once per session and a TranslationContext
// carrying the session's identifiers.
package translate

import (
	"fmt"

	"github.com/tdmsip/gateway/internal/translate/causetable"
	"github.com/tdmsip/gateway/internal/translate/causetable/ansi"
	"github.com/tdmsip/gateway/internal/translate/causetable/etsi"
	"github.com/tdmsip/gateway/internal/translate/causetable/itu"
)

// RuleSet bundles the immutable, per-variant tables a translation needs.
// Safe to share across every task once built (spec §5).
type RuleSet struct {
	Variant string
	Causes  *causetable.Table
}

// LoadRuleSet resolves a variant name to its RuleSet. Called once per
// session, at the point the session's variant is fixed (spec §4.G: "a
// session's first translation fixes the variant for the rest of its
// lifetime").
func LoadRuleSet(variant string) (*RuleSet, error) {
	switch variant {
	case "ITU", "":
		return &RuleSet{Variant: "ITU", Causes: itu.Table}, nil
	case "ANSI":
		return &RuleSet{Variant: "ANSI", Causes: ansi.Table}, nil
	case "ETSI":
		return &RuleSet{Variant: "ETSI", Causes: etsi.Table}, nil
	default:
		return nil, &RuleError{Kind: ErrUnknownVariant, Msg: fmt.Sprintf("unknown signaling variant %q", variant)}
	}
}

// TranslationContext carries the identifiers a translation needs beyond
// the message itself (spec §4.G "a source protocol message + a
// TranslationContext carrying the session's identifiers and chosen
// variant").
type TranslationContext struct {
	SessionID     string
	Rules         *RuleSet
	LocalIP       string
	RTPPort       int
	CallingNumber string
	CalledNumber  string
}

// RuleErrorKind enumerates translation failure modes (spec §7 "Translation").
type RuleErrorKind int

const (
	ErrNoRuleForCause RuleErrorKind = iota
	ErrUnknownVariant
)

// RuleError is returned when a translation can't proceed without a
// business decision from the caller. A cause or status missing from the
// table is handled internally by substituting the table's defaults instead
// of returning this (spec §4.G edge case); ErrNoRuleForCause is the kind
// returned for a message type that has no mapping at all.
type RuleError struct {
	Kind RuleErrorKind
	Msg  string
}

func (e *RuleError) Error() string { return e.Msg }
