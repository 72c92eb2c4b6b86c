// SPDX-License-Identifier: Apache-2.0

// Package util holds small cross-cutting helpers shared by every component.
package util

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// RecoverWithLog recovers from a panic in the calling goroutine and logs it
// with the given logger instead of crashing the process, tagging which task
// crashed so a panic in one span or NFAS goroutine doesn't read like it came
// from another. Every long-running task goroutine (LAPD engine, NFAS
// supervisor, driver receive loop) defers this first thing.
func RecoverWithLog(logger *zap.SugaredLogger, task string) {
	if p := recover(); p != nil {
		logger.Errorw("panic recovered", "task", task, "error", p, "stack", string(debug.Stack()))
	}
}
