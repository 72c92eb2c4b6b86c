// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tdmsip/gateway/internal/gateway"
	"github.com/tdmsip/gateway/logger"
)

var appLog *zap.SugaredLogger

func init() {
	appLog = logger.AppLog
}

func main() {
	app := &cli.App{
		Name:  "gwctl",
		Usage: "-cfg gateway configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cfg", Usage: "gateway config file", Required: true},
		},
		Action: action,
	}
	appLog.Infoln(app.Name)
	if err := app.Run(os.Args); err != nil {
		appLog.Errorw("gwctl run error", "error", err)
		os.Exit(1)
	}
}

func action(c *cli.Context) error {
	gw, err := gateway.Initialize(c.String("cfg"))
	if err != nil {
		logger.CfgLog.Errorw("initialize failed", "error", err)
		return fmt.Errorf("failed to initialize")
	}
	gw.Start()
	return nil
}
