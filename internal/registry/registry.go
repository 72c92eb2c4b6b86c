// SPDX-License-Identifier: Apache-2.0

// Package registry owns the Session Registry (spec §4.H): the four-way
// correlation between a Q.931 call reference, an ISUP CIC, a SIP Call-ID,
// and an allocated RTP port pair. Insert is atomic across whichever of the
// four keys a session carries; lookup works by any key; a record is removed
// only once every key it was inserted under has been released.
package registry

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/syncutil"
	"github.com/tdmsip/gateway/logger"
)

// KeyKind tags which of the four correlation slots a Key names.
type KeyKind int

const (
	KeyCallRef KeyKind = iota
	KeyCIC
	KeySIPCallID
	KeyRTPPort
)

func (k KeyKind) String() string {
	switch k {
	case KeyCallRef:
		return "CallRef"
	case KeyCIC:
		return "CIC"
	case KeySIPCallID:
		return "SIPCallID"
	case KeyRTPPort:
		return "RTPPort"
	default:
		return "unknown"
	}
}

// Key identifies a SessionRecord under one of its four slots.
type Key struct {
	Kind  KeyKind
	Value string
}

func CallRefKey(v string) Key    { return Key{KeyCallRef, v} }
func CICKey(cic int) Key         { return Key{KeyCIC, strconv.Itoa(cic)} }
func SIPCallIDKey(id string) Key { return Key{KeySIPCallID, id} }
func RTPPortKey(port int) Key    { return Key{KeyRTPPort, strconv.Itoa(port)} }

// KeyCollision is returned by Insert when any of the record's keys already
// names a session (spec §4.H: "insert fails ... no partial state remains").
type KeyCollision struct {
	Key Key
}

func (e *KeyCollision) Error() string {
	return "session key collision: " + e.Key.Kind.String() + "=" + e.Key.Value
}

// SessionRecord correlates one call's identifiers across the TDM and SIP
// sides. ID is an internal correlation UUID, not one of the four
// spec-defined keys.
type SessionRecord struct {
	ID        string
	CallRef   string
	CIC       int
	HasCIC    bool
	SIPCallID string
	RTPPort   int
	HasRTP    bool
	Calling   string
	Called    string
	Protocol  string // e.g. "Q.931<->SIP", "ISUP<->SIP-T"
	Variant   string
	StartTime time.Time
}

func (r *SessionRecord) keys() []Key {
	var ks []Key
	if r.CallRef != "" {
		ks = append(ks, CallRefKey(r.CallRef))
	}
	if r.HasCIC {
		ks = append(ks, CICKey(r.CIC))
	}
	if r.SIPCallID != "" {
		ks = append(ks, SIPCallIDKey(r.SIPCallID))
	}
	if r.HasRTP {
		ks = append(ks, RTPPortKey(r.RTPPort))
	}
	return ks
}

// CallEventRecord is emitted when a session's last key is released (spec §1
// non-goals parenthetical: "beyond producing call-event records" implies
// the records themselves are in scope).
type CallEventRecord struct {
	SessionID string
	Calling   string
	Called    string
	Protocol  string
	Cause     uint8
	StartTime time.Time
	EndTime   time.Time
}

// Registry is the guarded four-key correlation table (spec §5: "guarded by
// an internal lock held only for the duration of one insert/lookup/release
// operation; no user-visible suspension while holding it").
type Registry struct {
	mu      syncutil.Mutex
	byKey   map[Key]*SessionRecord
	refs    map[*SessionRecord]int
	log     *zap.SugaredLogger
	Events  chan CallEventRecord
}

func New(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = logger.RegistryLog
	}
	return &Registry{
		byKey:  make(map[Key]*SessionRecord),
		refs:   make(map[*SessionRecord]int),
		log:    log,
		Events: make(chan CallEventRecord, 64),
	}
}

// Insert atomically registers rec under every key it carries. On collision,
// no key is registered and the pre-existing record is untouched.
func (r *Registry) Insert(rec *SessionRecord) error {
	keys := rec.keys()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range keys {
		if _, exists := r.byKey[k]; exists {
			return &KeyCollision{Key: k}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now()
	}
	for _, k := range keys {
		r.byKey[k] = rec
	}
	r.refs[rec] = len(keys)
	return nil
}

// Lookup finds a session by any one of its four keys.
func (r *Registry) Lookup(k Key) (*SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byKey[k]
	return rec, ok
}

// Release drops one key from the registry. The record is fully removed,
// and a CallEventRecord emitted, only once every key it was inserted under
// has been released (spec §4.H "reference-counted across the four slots").
func (r *Registry) Release(k Key, cause uint8) {
	r.mu.Lock()
	rec, ok := r.byKey[k]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byKey, k)
	r.refs[rec]--
	fullyReleased := r.refs[rec] <= 0
	if fullyReleased {
		delete(r.refs, rec)
	}
	r.mu.Unlock()

	if fullyReleased {
		r.emitCallEvent(rec, cause)
	}
}

func (r *Registry) emitCallEvent(rec *SessionRecord, cause uint8) {
	ev := CallEventRecord{
		SessionID: rec.ID,
		Calling:   rec.Calling,
		Called:    rec.Called,
		Protocol:  rec.Protocol,
		Cause:     cause,
		StartTime: rec.StartTime,
		EndTime:   time.Now(),
	}
	select {
	case r.Events <- ev:
	default:
		r.log.Warnw("call event channel full, dropping record", "session", rec.ID)
	}
}
