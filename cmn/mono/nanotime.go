//go:build !mono

package mono

import "time"

var start = time.Now()

// NanoTime is the portable fallback for the linkname-based fast path in
// fast_nanotime.go (build tag "mono"): nanoseconds since process start,
// monotonic per time.Since semantics.
func NanoTime() int64 { return int64(time.Since(start)) }
