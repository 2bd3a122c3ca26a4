package dcseg

import (
	"sync"

	"github.com/sirikata/space/cmn"
)

// pool is the ServerID availability pool: a SegmentedRegion's ServerID is
// reused from this pool across its lifecycle -- created by bootstrap/split,
// destroyed by merge which returns it here.
type pool struct {
	mu   sync.Mutex
	free []cmn.ServerID
	next cmn.ServerID
}

func newPool() *pool { return &pool{next: 1} }

// Take returns a ServerID for a new leaf created by a split: a previously
// freed id if one is available, otherwise the next unused one.
func (p *pool) Take() cmn.ServerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		sid := p.free[n-1]
		p.free = p.free[:n-1]
		return sid
	}
	sid := p.next
	p.next++
	return sid
}

// Return gives a ServerID back to the pool after a merge frees it.
func (p *pool) Return(sid cmn.ServerID) {
	if !sid.Valid() {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, sid)
	p.mu.Unlock()
}

func (p *pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.next) - 1 - len(p.free)
}
