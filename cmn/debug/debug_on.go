//go:build debug

package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Infof(format string, a ...any) { fmt.Printf("[debug] "+format+"\n", a...) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, a...)...))
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: %v", err))
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, a...))
	}
}

// AssertMutexLocked and friends are no-ops even in debug builds:
// sync.Mutex/RWMutex carry no portable "is locked" introspection, so these
// check nothing.
func AssertMutexLocked(m *sync.Mutex)     { _ = m }
func AssertRWMutexLocked(m *sync.RWMutex) { _ = m }
func AssertRWMutexRLocked(*sync.RWMutex)  {}
