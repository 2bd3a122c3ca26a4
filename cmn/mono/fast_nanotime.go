//go:build mono

// Package mono provides a monotonic clock for the proximity tick loop, the
// nlog flush cadence, and session retry backoff timers.
/*
 * Copyright (c) 2024-2026, Sirikata Space Authors. All rights reserved.
 */
package mono

import (
	_ "unsafe" // for go:linkname
)

// https://pkg.go.dev/runtime#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64
