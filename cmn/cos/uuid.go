/*
 * Copyright (c) 2024-2026, Sirikata Space Authors. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short, log-friendly identifiers (session IDs,
// query IDs, CSEG request IDs): the same 64 characters as
// shortid.DEFAULT_ABC, in a different order.
const shortIDABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

// MLCG32 seeds the 64-bit digest used by HRW bounding-box-to-CSEG-node
// placement (see dcseg/hrw.go); any fixed seed works so long as every CSEG
// node in the fleet agrees on it.
const MLCG32 = 0x5bd1e995

const (
	LenSessionID = 9  // as per https://github.com/teris-io/shortid#id-length
	lenServerTag = 6
	tooLongID    = 32
)

var sid *shortid.Shortid

// InitIDGen seeds the short-ID generator. Called once at process bootstrap
// with a per-process seed (e.g. derived from the listen address) so that
// concurrently-started nodes in tests don't collide.
func InitIDGen(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, shortIDABC, seed)
}

// GenSessionID produces a short opaque identifier for a session, query, or
// in-flight CSEG RPC -- used purely for log correlation, never parsed.
func GenSessionID() string {
	if sid == nil {
		InitIDGen(1)
	}
	return sid.MustGenerate()
}

func IsValidSessionID(id string) bool {
	return len(id) >= LenSessionID && isAlphaNice(id)
}

// HashServerTag derives a short, stable, human-loggable tag for a ServerID
// or CSEGNodeID so log lines don't have to print the raw 128-bit reference.
func HashServerTag(name string) string {
	digest := xxhash.Checksum64S(UnsafeB(name), MLCG32)
	return fmt.Sprintf("%06x", digest&0xffffff)[:lenServerTag]
}

func CryptoRandS(n int) string {
	const abc = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // entropy source failure is not recoverable
	}
	for i, c := range buf {
		b[i] = abc[int(c)%len(abc)]
	}
	return string(b)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isAlphaNice: letters and numbers w/ '-' and '_' permitted, never leading
// or trailing the identifier.
func isAlphaNice(s string) bool {
	l := len(s)
	if l == 0 || l > tooLongID {
		return false
	}
	for i := range l {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

var errEmptyID = errors.New("identifier must not be empty")

func ValidateNonEmpty(tag, id string) error {
	if id == "" {
		return fmt.Errorf("%s: %w", tag, errEmptyID)
	}
	return nil
}
