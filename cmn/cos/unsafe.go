// Package cos provides common low-level types and utilities shared by the
// space server, object host, and CSEG node binaries.
package cos

import "unsafe"

// UnsafeB and UnsafeS perform zero-copy []byte<->string conversions for the
// hot paths (HRW digests, wire-frame parsing) where an extra allocation per
// call would show up in the query-handler tick loop.
func UnsafeB(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
