// SPDX-License-Identifier: Apache-2.0

package factory

import "time"

// ExpectedConfigVersion is the config schema version this build understands.
const ExpectedConfigVersion = "1.0.0"

// Config is the top-level shape of the gateway's YAML configuration file.
type Config struct {
	Info          *Info          `yaml:"info" validate:"required"`
	Configuration *Configuration `yaml:"configuration" validate:"required"`
	Logger        *LoggerConfig  `yaml:"logger,omitempty"`
}

type Info struct {
	Version     string `yaml:"version" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// Configuration holds every span, group, and pool the gateway supervises.
type Configuration struct {
	Spans      []SpanConfig      `yaml:"spans" validate:"required,min=1,dive"`
	NfasGroups []NfasGroupConfig `yaml:"nfasGroups" validate:"dive"`
	Isup       IsupConfig        `yaml:"isup"`
	Rtp        RtpConfig         `yaml:"rtp"`
	Sigtran    SigtranConfig     `yaml:"sigtran"`
	Variant    string            `yaml:"variant" validate:"oneof=ITU ANSI ETSI"`
	Timers     TimerConfig       `yaml:"timers"`
	LocalIP    string            `yaml:"localIp"`
}

// SpanConfig describes one physical D-channel-carrying span.
type SpanConfig struct {
	ID     int    `yaml:"id" validate:"required"`
	Driver string `yaml:"driver" validate:"required,oneof=loopback udpframe"`
	Device string `yaml:"device"`
	SAPI   uint8  `yaml:"sapi"`
	TEI    uint8  `yaml:"tei"`
	Role   string `yaml:"role" validate:"omitempty,oneof=primary backup"`
}

// NfasGroupConfig describes one logical D-channel spread over several spans.
type NfasGroupConfig struct {
	ID                     int           `yaml:"id" validate:"required"`
	SpanIDs                []int         `yaml:"spanIds" validate:"required,min=1"`
	PrimarySpanID          int           `yaml:"primarySpanId" validate:"required"`
	HeartbeatInterval      time.Duration `yaml:"heartbeatInterval"`
	HeartbeatLossThreshold int           `yaml:"heartbeatLossThreshold"`
	SwitchoverTimeout      time.Duration `yaml:"switchoverTimeout"`
	MaxSwitchoverAttempts  int           `yaml:"maxSwitchoverAttempts"`
	QueueDepth             int           `yaml:"queueDepth"`
}

type IsupConfig struct {
	CicRangeMin int    `yaml:"cicRangeMin" validate:"required"`
	CicRangeMax int    `yaml:"cicRangeMax" validate:"required,gtfield=CicRangeMin"`
	Variant     string `yaml:"variant" validate:"omitempty,oneof=ITU ANSI ETSI"`
}

type RtpConfig struct {
	PortMin int `yaml:"portMin" validate:"required"`
	PortMax int `yaml:"portMax" validate:"required,gtfield=PortMin"`
}

// SigtranConfig describes the association carrying ISUP messages. An empty
// Driver leaves the gateway's ISUP side unattached (no association to
// receive from), matching a PRI-only deployment.
type SigtranConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=loopback"`
}

// TimerConfig overrides the LAPD timer defaults (T200/T203/N200/K) from spec
// §4.B; the gateway applies these to every span's engine. The Q.931 fields
// (T301-T310) are parsed but not applied: call control uses its built-in
// defaults.
type TimerConfig struct {
	T200 time.Duration `yaml:"t200,omitempty"`
	T203 time.Duration `yaml:"t203,omitempty"`
	N200 int           `yaml:"n200,omitempty"`
	K    int           `yaml:"k,omitempty"`
	T301 time.Duration `yaml:"t301,omitempty"`
	T302 time.Duration `yaml:"t302,omitempty"`
	T303 time.Duration `yaml:"t303,omitempty"`
	T305 time.Duration `yaml:"t305,omitempty"`
	T308 time.Duration `yaml:"t308,omitempty"`
	T310 time.Duration `yaml:"t310,omitempty"`
}

// LoggerConfig maps a component name to a log level string.
type LoggerConfig struct {
	Levels map[string]string `yaml:"levels,omitempty"`
}

func (c *Config) getVersion() string {
	if c.Info != nil && c.Info.Version != "" {
		return c.Info.Version
	}
	return ""
}
