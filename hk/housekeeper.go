// Package hk provides a mechanism for registering cleanup and maintenance
// callbacks invoked at specified intervals -- the scheduler behind DCSEG's
// periodic split/merge maintenance and the proximity engine's tick and
// rebuild timers.
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirikata/space/cmn/nlog"
)

// NameSuffix disambiguates housekeeper registrations that share a logical
// name across independently-started subsystems.
const NameSuffix = ".hk"

// CB is a housekeeping callback. It returns the delay until it should run
// again; a non-positive return value unregisters it.
type CB func() time.Duration

type request struct {
	name string
	f    CB
	due  time.Time
	idx  int
}

type reqHeap []*request

func (h reqHeap) Len() int            { return len(h) }
func (h reqHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h reqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].idx, h[j].idx = i, j }
func (h *reqHeap) Push(x any)         { r := x.(*request); r.idx = len(*h); *h = append(*h, r) }
func (h *reqHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Housekeeper is a single goroutine driving a min-heap of due-times; all
// registration/unregistration is serialized through ctrlCh so the heap
// itself needs no lock -- the same "communicate, don't share" discipline
// used for cross-strand handoffs elsewhere in this module.
type Housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*request
	h       reqHeap
	ctrlCh  chan ctrlMsg
	started chan struct{}
	stopCh  chan struct{}
	once    sync.Once
}

type ctrlMsg struct {
	reg   *request
	unreg string
}

var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*request),
		ctrlCh:  make(chan ctrlMsg, 64),
		started: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }

func WaitStarted() { <-DefaultHK.started }

// Reg registers a named callback that first runs after interval; f's return
// value schedules the following run.
func Reg(name string, f CB, interval time.Duration) { DefaultHK.Reg(name, f, interval) }
func Unreg(name string)                             { DefaultHK.Unreg(name) }

func (hk *Housekeeper) Reg(name string, f CB, interval time.Duration) {
	r := &request{name: name, f: f, due: time.Now().Add(interval)}
	select {
	case hk.ctrlCh <- ctrlMsg{reg: r}:
	default:
		nlog.Warningf("hk: registration queue full, dropping %q", name)
	}
}

func (hk *Housekeeper) Unreg(name string) {
	select {
	case hk.ctrlCh <- ctrlMsg{unreg: name}:
	default:
		nlog.Warningf("hk: unreg queue full for %q", name)
	}
}

// Run is the housekeeper's event loop. It must run on its own goroutine for
// the lifetime of the process.
func (hk *Housekeeper) Run() error {
	hk.once.Do(func() { close(hk.started) })
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		hk.resetTimer(timer)
		select {
		case <-hk.stopCh:
			return nil
		case msg := <-hk.ctrlCh:
			hk.applyCtrl(msg)
		case <-timer.C:
			hk.fireDue()
		}
	}
}

func (hk *Housekeeper) Stop() { close(hk.stopCh) }

func (hk *Housekeeper) applyCtrl(msg ctrlMsg) {
	if msg.reg != nil {
		if old, ok := hk.byName[msg.reg.name]; ok {
			heap.Remove(&hk.h, old.idx)
		}
		hk.byName[msg.reg.name] = msg.reg
		heap.Push(&hk.h, msg.reg)
		return
	}
	if r, ok := hk.byName[msg.unreg]; ok {
		heap.Remove(&hk.h, r.idx)
		delete(hk.byName, msg.unreg)
	}
}

func (hk *Housekeeper) resetTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if len(hk.h) == 0 {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(hk.h[0].due)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (hk *Housekeeper) fireDue() {
	now := time.Now()
	for len(hk.h) > 0 && !hk.h[0].due.After(now) {
		r := heap.Pop(&hk.h).(*request)
		delete(hk.byName, r.name)
		next := r.f()
		if next > 0 {
			r.due = now.Add(next)
			hk.byName[r.name] = r
			heap.Push(&hk.h, r)
		}
	}
}
