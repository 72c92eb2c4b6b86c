// SPDX-License-Identifier: Apache-2.0

// Package nfas implements the NFAS Manager (spec §4.F): a group of LAPD
// engines, one per physical span, presenting a single logical D-channel
// upstream with primary/backup election, heartbeat supervision, and
// automatic switchover.
package nfas

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/lapd"
	"github.com/tdmsip/gateway/internal/util"
	"github.com/tdmsip/gateway/logger"
)

// State is the group's overall state (spec §3 "NFAS group").
type State int

const (
	StateInactive State = iota
	StateActive
	StateSwitching
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateActive:
		return "Active"
	case StateSwitching:
		return "Switching"
	default:
		return "unknown"
	}
}

// Member is one span's engine within the group.
type Member struct {
	SpanID int
	Engine *lapd.Engine
	Role   lapd.Role
	failed bool
}

// Config parameterizes switchover and heartbeat behavior.
type Config struct {
	HeartbeatInterval      time.Duration
	HeartbeatLossThreshold int
	SwitchoverTimeout      time.Duration
	MaxSwitchoverAttempts  int
	QueueDepth             int
}

func (c *Config) fillDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatLossThreshold == 0 {
		c.HeartbeatLossThreshold = 3
	}
	if c.SwitchoverTimeout == 0 {
		c.SwitchoverTimeout = 5 * time.Second
	}
	if c.MaxSwitchoverAttempts == 0 {
		c.MaxSwitchoverAttempts = 1
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 64
	}
}

// Counters tracks the group's lifetime bookkeeping (spec §3).
type Counters struct {
	Switchovers      int
	HeartbeatsSent   int
	HeartbeatsLost   int
	CallsHandled     int
	LastSwitchoverAt time.Time
}

// Group owns >= 2 LAPD engines, one marked primary (spec §4.F). A
// single-member group never switches over (spec §8 boundary behaviour).
type Group struct {
	ID      int
	cfg     Config
	log     *zap.SugaredLogger
	mu      sync.Mutex
	members []*Member
	active  int // index into members, -1 if none
	state   State
	counters Counters

	consecutiveHBFail int

	upstream    []byte
	queuedMsgs  [][]byte
	Events      chan Event
	heartbeatCancel func()
}

// New builds a Group. members must be non-empty and the first entry with
// Role == lapd.RolePrimary is used as the initial active candidate; if none
// is marked primary, members[0] is used.
func New(id int, members []*Member, cfg Config, log *zap.SugaredLogger) (*Group, error) {
	if len(members) == 0 {
		return nil, &ConfigError{"NFAS group requires at least one span"}
	}
	cfg.fillDefaults()
	if log == nil {
		log = logger.NfasLog
	}
	g := &Group{
		ID:      id,
		cfg:     cfg,
		log:     log,
		members: members,
		active:  -1,
		state:   StateInactive,
		Events:  make(chan Event, 32),
	}
	return g, nil
}

// ConfigError signals a group misconfiguration; New returns it for an empty
// span list and Start repeats the check (spec §8:
// "Empty D-channel list in an NFAS group rejects start with a config error").
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return e.Msg }

func (g *Group) primaryIndex() int {
	for i, m := range g.members {
		if m.Role == lapd.RolePrimary {
			return i
		}
	}
	return 0
}

// Start begins group operation: starts the primary engine's link
// establishment and, once it emits Established, transitions the group to
// Active (spec §4.F "On start, the manager starts the primary engine").
func (g *Group) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.members) == 0 {
		return &ConfigError{"cannot start a group with no spans"}
	}
	primary := g.primaryIndex()
	go func() {
		defer util.RecoverWithLog(g.log, fmt.Sprintf("nfas group %d watch member %d", g.ID, g.members[primary].SpanID))
		g.watchMember(g.members[primary])
	}()
	g.members[primary].Engine.Start()
	g.active = primary
	return nil
}

// watchMember pumps one engine's events into the group's control flow. It
// runs for the lifetime of the group; only the currently-active member's
// events drive switchover decisions.
func (g *Group) watchMember(m *Member) {
	for ev := range m.Engine.Events() {
		g.onMemberEvent(m, ev)
	}
}

func (g *Group) onMemberEvent(m *Member, ev lapd.Event) {
	g.mu.Lock()
	isActive := g.active >= 0 && g.members[g.active] == m
	g.mu.Unlock()

	switch ev.Kind {
	case lapd.EventEstablished:
		g.mu.Lock()
		if isActive && g.state != StateActive {
			g.state = StateActive
			g.startHeartbeat()
		}
		g.mu.Unlock()
	case lapd.EventReleased, lapd.EventError:
		if isActive {
			reason := ReasonLinkError
			if ev.Kind == lapd.EventReleased {
				reason = ReasonLinkReleased
			}
			g.TriggerSwitchover(reason, 0, ev.Unacked)
		}
	case lapd.EventData:
		if isActive {
			g.deliverUpstream(ev.Data)
		}
	}
}

func (g *Group) deliverUpstream(data []byte) {
	select {
	case g.Events <- Event{Kind: EventUpstreamData, Data: data}:
	default:
		g.log.Warnw("upstream event channel full, dropping data")
	}
}

// MemberSpanIDs returns every span ID belonging to this group, regardless
// of which is currently active.
func (g *Group) MemberSpanIDs() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int, len(g.members))
	for i, m := range g.members {
		ids[i] = m.SpanID
	}
	return ids
}

// ActiveSpanID returns the span ID currently carrying traffic, or 0 if none.
func (g *Group) ActiveSpanID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active < 0 {
		return 0
	}
	return g.members[g.active].SpanID
}

// State returns the group's current state.
func (g *Group) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Counters returns a snapshot of the group's lifetime counters.
func (g *Group) Counters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

// SendUpstream transmits a Q.931 payload on the active engine, or queues it
// (bounded, spec §4.F) if the group is currently Switching.
func (g *Group) SendUpstream(payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateSwitching {
		if len(g.queuedMsgs) >= g.cfg.QueueDepth {
			g.queuedMsgs = g.queuedMsgs[1:]
			select {
			case g.Events <- Event{Kind: EventQueueOverflow}:
			default:
			}
		}
		g.queuedMsgs = append(g.queuedMsgs, payload)
		return
	}
	if g.active < 0 {
		g.log.Warnw("no active span, dropping upstream message")
		return
	}
	g.members[g.active].Engine.SendUserData(payload)
}

func (g *Group) flushQueue() {
	if g.active < 0 {
		return
	}
	pending := g.queuedMsgs
	g.queuedMsgs = nil
	for _, m := range pending {
		g.members[g.active].Engine.SendUserData(m)
	}
}

func (g *Group) String() string {
	return fmt.Sprintf("nfas.Group{id=%d,state=%s,active=%d}", g.ID, g.state, g.active)
}
