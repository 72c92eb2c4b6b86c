// SPDX-License-Identifier: Apache-2.0

// Package factory loads and validates the gateway's YAML configuration file,
// the way the teacher's factory package loads its own config: unmarshal,
// then validate, then check the schema version separately so callers can
// report each failure mode distinctly.
package factory

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/tdmsip/gateway/logger"
)

// GatewayConfig is the process-wide loaded configuration, set by
// InitConfigFactory. Components read it at startup only; it is not mutated
// afterwards.
var GatewayConfig Config

var validate = validator.New()

// InitConfigFactory reads and unmarshals the config file at f into
// GatewayConfig and validates its struct tags.
func InitConfigFactory(f string) error {
	content, err := os.ReadFile(f)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	GatewayConfig = cfg
	return nil
}

// CheckConfigVersion verifies the loaded config declares the schema version
// this build understands.
func CheckConfigVersion() error {
	currentVersion := GatewayConfig.getVersion()
	if currentVersion != ExpectedConfigVersion {
		return fmt.Errorf("config version is [%s], but expected is [%s]",
			currentVersion, ExpectedConfigVersion)
	}
	logger.CfgLog.Infof("config version [%s]", currentVersion)
	return nil
}
