// SPDX-License-Identifier: Apache-2.0

// Package gateway is the top-level supervisor: it owns every component the
// spec names and wires their typed event streams together, rather than
// letting components reach for each other (spec §9 DESIGN NOTES "Cyclic
// references between collaborators" / "Global state"). Grounded on the
// teacher's service/init.go two-phase Initialize-then-Start shape.
package gateway

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/tdmsip/gateway/factory"
	"github.com/tdmsip/gateway/internal/isup"
	"github.com/tdmsip/gateway/internal/lapd"
	"github.com/tdmsip/gateway/internal/nfas"
	"github.com/tdmsip/gateway/internal/registry"
	"github.com/tdmsip/gateway/internal/rtp"
	"github.com/tdmsip/gateway/internal/sigtran"
	"github.com/tdmsip/gateway/internal/sip"
	"github.com/tdmsip/gateway/internal/tdm"
	"github.com/tdmsip/gateway/internal/translate"
	"github.com/tdmsip/gateway/internal/util"
	"github.com/tdmsip/gateway/logger"
)

// Gateway is the process-wide supervisor built from one loaded
// factory.Config. It also assembles the dispatcher (internal/gateway/dispatch.go):
// one callctrl.Manager per D-channel, a shared registry.Registry and
// rtp.Pool, and the sip.Transport/sigtran.Association endpoints that carry
// translated messages off this process (spec §2 data-flow diagram).
type Gateway struct {
	Registry     *registry.Registry
	RTPPool      *rtp.Pool
	ISUP         *isup.Handler
	Rules        *translate.RuleSet
	NfasGroups   map[int]*nfas.Group
	Spans        map[int]*lapd.Engine
	SIPTransport sip.Transport
	SigtranAssoc sigtran.Association
	LocalIP      string

	drivers  []tdm.Driver
	channels []*dchannel

	chMu             sync.Mutex
	channelByCallRef map[string]*dchannel

	isupMu       sync.Mutex
	isupSessions map[int]*translate.TranslationContext
	causeByCIC   map[int]uint8

	wg sync.WaitGroup
}

// Initialize loads and validates the config file, applies log levels, and
// builds every component (spec §1.2 ambient stack).
func Initialize(cfgPath string) (*Gateway, error) {
	absPath, err := filepath.Abs(cfgPath)
	if err != nil {
		logger.CfgLog.Errorw("resolve config path", "error", err)
		return nil, err
	}
	if err := factory.InitConfigFactory(absPath); err != nil {
		return nil, err
	}
	if err := factory.CheckConfigVersion(); err != nil {
		return nil, err
	}
	applyLogLevels(factory.GatewayConfig.Logger)

	cfg := factory.GatewayConfig.Configuration
	g := &Gateway{
		Registry:         registry.New(nil),
		RTPPool:          rtp.New(cfg.Rtp.PortMin, cfg.Rtp.PortMax),
		ISUP:             isup.NewHandler(isup.NewCicPool(cfg.Isup.CicRangeMin, cfg.Isup.CicRangeMax), nil),
		NfasGroups:       make(map[int]*nfas.Group),
		Spans:            make(map[int]*lapd.Engine),
		SIPTransport:     &sip.MemoryTransport{},
		LocalIP:          cfg.LocalIP,
		channelByCallRef: make(map[string]*dchannel),
		isupSessions:     make(map[int]*translate.TranslationContext),
		causeByCIC:       make(map[int]uint8),
	}

	rules, err := translate.LoadRuleSet(cfg.Variant)
	if err != nil {
		return nil, err
	}
	g.Rules = rules

	if err := g.buildSpans(cfg); err != nil {
		return nil, err
	}
	if err := g.buildNfasGroups(cfg); err != nil {
		return nil, err
	}
	if err := g.buildSigtran(cfg); err != nil {
		return nil, err
	}
	g.buildChannels()
	return g, nil
}

// buildSigtran attaches the ISUP side's SIGTRAN collaborator, wiring its
// inbound callback straight to handleInboundISUP. An empty driver leaves
// SigtranAssoc nil (a PRI-only deployment with no ISUP trunks).
func (g *Gateway) buildSigtran(cfg *factory.Configuration) error {
	switch cfg.Sigtran.Driver {
	case "":
		return nil
	case "loopback":
		assoc := sigtran.NewLoopback()
		assoc.OnFrame = g.handleInboundISUP
		g.SigtranAssoc = assoc
		return nil
	default:
		return fmt.Errorf("unknown sigtran driver %q", cfg.Sigtran.Driver)
	}
}

func applyLogLevels(cfg *factory.LoggerConfig) {
	if cfg == nil || len(cfg.Levels) == 0 {
		logger.InitLog.Warnln("gateway config without log level setting, default [info]")
		logger.SetLogLevel(zapcore.InfoLevel)
		return
	}
	most := zapcore.InvalidLevel
	for component, raw := range cfg.Levels {
		lvl, err := zapcore.ParseLevel(raw)
		if err != nil {
			logger.InitLog.Warnw("invalid log level, ignoring", "component", component, "level", raw)
			continue
		}
		if most == zapcore.InvalidLevel || lvl < most {
			most = lvl
		}
	}
	if most == zapcore.InvalidLevel {
		most = zapcore.InfoLevel
	}
	logger.SetLogLevel(most)
}

func (g *Gateway) buildSpans(cfg *factory.Configuration) error {
	for _, sc := range cfg.Spans {
		driver, onFrame, err := g.buildDriver(sc)
		if err != nil {
			return fmt.Errorf("span %d: %w", sc.ID, err)
		}
		g.drivers = append(g.drivers, driver)

		role := lapd.RolePlain
		switch sc.Role {
		case "primary":
			role = lapd.RolePrimary
		case "backup":
			role = lapd.RoleBackup
		}

		engineCfg := lapd.Config{SAPI: sc.SAPI, TEI: sc.TEI, Role: role, Trans: driver}
		applyTimerOverrides(&engineCfg, cfg.Timers)
		e := lapd.New(engineCfg, nil)
		*onFrame = e.Receive
		g.Spans[sc.ID] = e
	}
	return nil
}

func applyTimerOverrides(c *lapd.Config, t factory.TimerConfig) {
	if t.T200 != 0 {
		c.T200 = t.T200
	}
	if t.T203 != 0 {
		c.T203 = t.T203
	}
	if t.N200 != 0 {
		c.N200 = t.N200
	}
	if t.K != 0 {
		c.K = t.K
	}
}

// buildDriver returns a tdm.Driver for the span plus a settable pointer to
// the callback the driver should invoke for each received frame; the
// caller fills that pointer in once the owning lapd.Engine exists, since
// the driver must be opened before the engine that will consume its
// frames.
func (g *Gateway) buildDriver(sc factory.SpanConfig) (tdm.Driver, *func([]byte), error) {
	var cb func([]byte)
	cbPtr := &cb

	deliver := func(f []byte) {
		if cb != nil {
			cb(f)
		}
	}

	switch sc.Driver {
	case "loopback":
		d := tdm.NewLoopback()
		d.OnFrame = deliver
		return d, cbPtr, nil
	case "udpframe":
		listenPort, peerAddr, peerPort, err := parseUDPFrameDevice(sc.Device)
		if err != nil {
			return nil, nil, err
		}
		d, err := tdm.NewUDPFrameDriver(tdm.UDPFrameConfig{ListenPort: listenPort, PeerAddr: peerAddr, PeerPort: peerPort}, deliver, nil)
		if err != nil {
			return nil, nil, err
		}
		return d, cbPtr, nil
	default:
		return nil, nil, fmt.Errorf("unknown span driver %q", sc.Driver)
	}
}

func (g *Gateway) buildNfasGroups(cfg *factory.Configuration) error {
	for _, gc := range cfg.NfasGroups {
		var members []*nfas.Member
		for _, spanID := range gc.SpanIDs {
			e, ok := g.Spans[spanID]
			if !ok {
				return fmt.Errorf("nfas group %d references unknown span %d", gc.ID, spanID)
			}
			role := lapd.RoleBackup
			if spanID == gc.PrimarySpanID {
				role = lapd.RolePrimary
			}
			members = append(members, &nfas.Member{SpanID: spanID, Engine: e, Role: role})
		}
		group, err := nfas.New(gc.ID, members, nfas.Config{
			HeartbeatInterval:      gc.HeartbeatInterval,
			HeartbeatLossThreshold: gc.HeartbeatLossThreshold,
			SwitchoverTimeout:      gc.SwitchoverTimeout,
			MaxSwitchoverAttempts:  gc.MaxSwitchoverAttempts,
			QueueDepth:             gc.QueueDepth,
		}, nil)
		if err != nil {
			return fmt.Errorf("nfas group %d: %w", gc.ID, err)
		}
		g.NfasGroups[gc.ID] = group
	}
	return nil
}

// Start runs every span's engine and every NFAS group, then blocks until a
// termination signal arrives (spec §9 "cooperative task scheduler with a
// small fixed pool of worker threads").
func (g *Gateway) Start() {
	logger.GatewayLog.Infoln("gateway starting")
	g.startDispatch()
	for id, e := range g.Spans {
		g.wg.Add(1)
		go func(id int, e *lapd.Engine) {
			defer g.wg.Done()
			defer util.RecoverWithLog(logger.GatewayLog, fmt.Sprintf("span %d run loop", id))
			e.Run()
		}(id, e)
	}
	for id, grp := range g.NfasGroups {
		if err := grp.Start(); err != nil {
			logger.GatewayLog.Errorw("nfas group failed to start", "group", id, "error", err)
		}
	}
	for id, e := range g.Spans {
		if !isMemberOfAnyGroup(id, g.NfasGroups) {
			e.Start()
		}
	}
	logger.GatewayLog.Infoln("gateway running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	g.Stop()
}

func isMemberOfAnyGroup(spanID int, groups map[int]*nfas.Group) bool {
	for _, grp := range groups {
		for _, m := range grp.MemberSpanIDs() {
			if m == spanID {
				return true
			}
		}
	}
	return false
}

// Stop closes every driver and every span engine.
func (g *Gateway) Stop() {
	logger.GatewayLog.Infoln("gateway stopping")
	for _, e := range g.Spans {
		e.Close()
	}
	for _, d := range g.drivers {
		d.Close()
	}
}
