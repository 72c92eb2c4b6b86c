// SPDX-License-Identifier: Apache-2.0

// Package logger builds the structured loggers shared across every gateway
// component. Each component gets its own SugaredLogger carved off a single
// zap.Logger; all of them share one process-wide log level.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.Logger

	AppLog       *zap.SugaredLogger
	InitLog      *zap.SugaredLogger
	CfgLog       *zap.SugaredLogger
	FrameLog     *zap.SugaredLogger
	LapdLog      *zap.SugaredLogger
	Q931Log      *zap.SugaredLogger
	CallCtrlLog  *zap.SugaredLogger
	IsupLog      *zap.SugaredLogger
	NfasLog      *zap.SugaredLogger
	TranslateLog *zap.SugaredLogger
	RegistryLog  *zap.SugaredLogger
	RtpLog       *zap.SugaredLogger
	SipLog       *zap.SugaredLogger
	TdmLog       *zap.SugaredLogger
	GatewayLog   *zap.SugaredLogger

	atomicLevel zap.AtomicLevel
)

func init() {
	atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	config := zap.Config{
		Level:            atomicLevel,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	encCfg := &config.EncoderConfig
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.LevelKey = "level"
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = "caller"
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encCfg.MessageKey = "message"
	encCfg.StacktraceKey = ""

	var err error
	log, err = config.Build()
	if err != nil {
		panic(err)
	}

	AppLog = withCategory("App")
	InitLog = withCategory("Init")
	CfgLog = withCategory("Config")
	FrameLog = withCategory("Frame")
	LapdLog = withCategory("LAPD")
	Q931Log = withCategory("Q931")
	CallCtrlLog = withCategory("CallCtrl")
	IsupLog = withCategory("ISUP")
	NfasLog = withCategory("NFAS")
	TranslateLog = withCategory("Translate")
	RegistryLog = withCategory("Registry")
	RtpLog = withCategory("RTP")
	SipLog = withCategory("SIP")
	TdmLog = withCategory("TDM")
	GatewayLog = withCategory("Gateway")
}

func withCategory(category string) *zap.SugaredLogger {
	return log.Sugar().With("component", "gateway", "category", category)
}

// GetLogger returns the base zap.Logger for collaborators that need it raw.
func GetLogger() *zap.Logger {
	return log
}

// SetLogLevel sets the process-wide log level (panic|fatal|error|warn|info|debug).
func SetLogLevel(level zapcore.Level) {
	InitLog.Infoln("set log level:", level)
	atomicLevel.SetLevel(level)
}
