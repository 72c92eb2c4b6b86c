//go:build !deadlock

// Package syncutil provides a Mutex that can optionally use deadlock
// detection. By default it is a zero-overhead sync.Mutex. Build with
// -tags=deadlock to swap in github.com/sasha-s/go-deadlock, which is useful
// while developing the Session Registry's single-lock discipline (spec §5:
// "guarded by an internal lock held only for the duration of one
// operation").
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic
type Mutex struct {
	sync.Mutex
}
