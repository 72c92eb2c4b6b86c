// SPDX-License-Identifier: Apache-2.0

// Package causetable holds the Q.850-cause <-> SIP-status mapping shared by
// the per-variant tables in its itu/ansi/etsi subpackages (spec §4.G:
// "immutable rule sets loaded once per variant").
package causetable

// Entry pairs one Q.850 cause with its SIP-status equivalent. Several
// causes can map to the same SIP status (e.g. both 1 and 3 map to 404);
// Canonical marks which one of those is used when translating the status
// back to a cause, per the spec's named round trips (404->1, 480->19,
// 503->34).
type Entry struct {
	Cause     uint8
	SIPStatus int
	Reason    string
	Canonical bool
}

// Table is an immutable, bidirectional cause/status mapping for one
// signaling variant.
type Table struct {
	Variant string
	toSIP   map[uint8]Entry
	toCause map[int]Entry
}

// New builds a Table from entries. Safe to share across every task once
// built; never mutated afterward (spec §5: "translator rule sets: immutable
// after startup; safe to read from any task").
func New(variant string, entries []Entry) *Table {
	t := &Table{
		Variant: variant,
		toSIP:   make(map[uint8]Entry, len(entries)),
		toCause: make(map[int]Entry, len(entries)),
	}
	for _, e := range entries {
		t.toSIP[e.Cause] = e
		if _, exists := t.toCause[e.SIPStatus]; !exists || e.Canonical {
			t.toCause[e.SIPStatus] = e
		}
	}
	return t
}

// ToSIP maps a Q.850 cause to its SIP status/reason.
func (t *Table) ToSIP(cause uint8) (Entry, bool) {
	e, ok := t.toSIP[cause]
	return e, ok
}

// ToCause maps a SIP status code back to its Q.850 cause/reason.
func (t *Table) ToCause(status int) (Entry, bool) {
	e, ok := t.toCause[status]
	return e, ok
}

// DefaultOutboundCause is used when a cause has no table entry (spec §4.G
// edge case, §7 "Translation: NoRuleForCause").
const DefaultOutboundCause uint8 = 31 // normal, unspecified

// DefaultInboundStatus is used when a SIP status has no table entry.
const DefaultInboundStatus = 500

// BaseEntries is the cause/status mapping common to every variant (spec
// §4.G examples: 486->17, 480->19, 404->1, 503->34; 16 maps to a BYE rather
// than a status and is handled by the caller before consulting the table).
// Per-variant packages start from this and may add or override entries
// where the variant's cause set diverges.
func BaseEntries() []Entry {
	return []Entry{
		{Cause: 1, SIPStatus: 404, Reason: "Unallocated number", Canonical: true},
		{Cause: 3, SIPStatus: 404, Reason: "No route to destination"},
		{Cause: 17, SIPStatus: 486, Reason: "User busy", Canonical: true},
		{Cause: 18, SIPStatus: 408, Reason: "No user responding"},
		{Cause: 19, SIPStatus: 480, Reason: "No answer from user", Canonical: true},
		{Cause: 21, SIPStatus: 403, Reason: "Call rejected"},
		{Cause: 22, SIPStatus: 410, Reason: "Number changed"},
		{Cause: 27, SIPStatus: 502, Reason: "Destination out of order"},
		{Cause: 28, SIPStatus: 484, Reason: "Address incomplete"},
		{Cause: 29, SIPStatus: 501, Reason: "Facility rejected"},
		{Cause: 31, SIPStatus: 480, Reason: "Normal, unspecified"},
		{Cause: 34, SIPStatus: 503, Reason: "No circuit/channel available", Canonical: true},
		{Cause: 38, SIPStatus: 503, Reason: "Network out of order"},
		{Cause: 41, SIPStatus: 503, Reason: "Temporary failure"},
		{Cause: 42, SIPStatus: 503, Reason: "Switching equipment congestion"},
		{Cause: 44, SIPStatus: 503, Reason: "Requested circuit/channel not available"},
		{Cause: 47, SIPStatus: 503, Reason: "Resource unavailable"},
		{Cause: 55, SIPStatus: 403, Reason: "Incoming calls barred"},
		{Cause: 57, SIPStatus: 403, Reason: "Bearer capability not authorized"},
		{Cause: 58, SIPStatus: 503, Reason: "Bearer capability not presently available"},
		{Cause: 65, SIPStatus: 488, Reason: "Bearer capability not implemented"},
		{Cause: 69, SIPStatus: 501, Reason: "Requested facility not implemented"},
		{Cause: 88, SIPStatus: 488, Reason: "Incompatible destination"},
		{Cause: 102, SIPStatus: 408, Reason: "Recovery on timer expiry"},
	}
}
