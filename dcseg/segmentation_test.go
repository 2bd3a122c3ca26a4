package dcseg

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sirikata/space/cmn"
)

// fakeListener records every SEGMENTATION_CHANGE the sweep emits locally,
// an in-process stand-in for the SEGMENTATION_LISTEN subscriber.
type fakeListener struct {
	changes []SegChangeMsg
}

func (f *fakeListener) OnSegmentationChange(msg SegChangeMsg) {
	f.changes = append(f.changes, msg)
}

func worldBoxForTest() cmn.BoundingBox {
	return cmn.NewBoundingBox(cmn.Vector3{X: -100, Y: -100, Z: -100}, cmn.Vector3{X: 100, Y: 100, Z: 100})
}

func testNode(splitProb float64, mergeEnabled bool) *Node {
	cfg := cmn.DefaultConfig()
	cfg.DCSEG.SplitProbability = splitProb
	cfg.DCSEG.MergeEnabled = mergeEnabled
	return NewNode(1, worldBoxForTest(), 7, nil, cfg)
}

var _ = Describe("Node split/merge maintenance sweep", func() {
	var (
		n  *Node
		lt *fakeListener
	)

	BeforeEach(func() {
		lt = &fakeListener{}
	})

	Describe("with split always eligible", func() {
		BeforeEach(func() {
			n = testNode(1.0, true)
			n.Subscribe(lt)
		})

		It("splits the sole leaf and grows NumServers", func() {
			Expect(n.NumServers()).To(Equal(uint32(1)))

			n.sweep()

			Expect(n.NumServers()).To(Equal(uint32(2)))
			Expect(lt.changes).To(HaveLen(1))
			Expect(lt.changes[0].Entries).To(HaveLen(2))
		})

		It("keeps Lookup correct for points on both sides of the split", func() {
			n.sweep()

			left, err := n.Lookup(cmn.Vector3{X: -50, Y: 0, Z: 0})
			Expect(err).NotTo(HaveOccurred())
			right, err := n.Lookup(cmn.Vector3{X: 50, Y: 0, Z: 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(left).NotTo(Equal(right))
		})

		It("preserves every lower tree's invariants after repeated splits", func() {
			for i := 0; i < 3; i++ {
				n.sweep()
			}
			n.mu.RLock()
			defer n.mu.RUnlock()
			for _, t := range n.lower {
				Expect(t.CheckInvariants()).To(Succeed())
			}
		})

		It("invalidates the whole-tree server-region cache on every change", func() {
			n.ServerRegion(1) // populate the cache
			n.mu.RLock()
			_, cached := n.wholeTreeCache[1]
			n.mu.RUnlock()
			Expect(cached).To(BeTrue())

			n.sweep()

			n.mu.RLock()
			defer n.mu.RUnlock()
			Expect(n.wholeTreeCache).To(BeEmpty())
		})
	})

	Describe("with merge always eligible once a sibling pair exists", func() {
		BeforeEach(func() {
			n = testNode(1.0, true)
			n.sweep() // produce one sibling pair to merge
			n.Subscribe(lt)
		})

		It("merges the sibling pair back down and returns the freed id to the pool", func() {
			before := n.NumServers()
			Expect(before).To(Equal(uint32(2)))

			n.cfg.DCSEG.SplitProbability = 0.0 // merge branch only, per sweep's (1-splitProb) roll
			n.sweep()

			Expect(n.NumServers()).To(Equal(uint32(1)))
			Expect(n.avail.Size()).To(Equal(0)) // the pool-issued id came back from the merge
		})

		It("reuses a freed ServerID on the next split", func() {
			n.cfg.DCSEG.SplitProbability = 0.0
			n.sweep() // merge
			Expect(n.NumServers()).To(Equal(uint32(1)))

			n.cfg.DCSEG.SplitProbability = 1.0
			n.sweep() // split again

			n.mu.RLock()
			var servers []cmn.ServerID
			for _, t := range n.lower {
				for _, leaf := range t.AllLeaves() {
					servers = append(servers, leaf.Server)
				}
			}
			n.mu.RUnlock()
			Expect(servers).To(ContainElement(cmn.ServerID(1))) // reused from the pool, not a fresh id
		})
	})

	Describe("with merge disabled", func() {
		BeforeEach(func() {
			n = testNode(1.0, false)
			n.sweep() // split once
		})

		It("never merges regardless of the split-probability roll", func() {
			Expect(n.NumServers()).To(Equal(uint32(2)))

			n.cfg.DCSEG.SplitProbability = 0.0
			n.sweep()

			Expect(n.NumServers()).To(BeNumerically(">=", uint32(2)))
		})
	})

	Describe("a node with no eligible leaves", func() {
		It("does not notify listeners on a no-op sweep", func() {
			n = testNode(0.0, false)
			n.Subscribe(lt)

			n.sweep()

			Expect(lt.changes).To(BeEmpty())
		})
	})

	Describe("maintenance scheduling", func() {
		It("returns the configured interval as its next delay", func() {
			n = testNode(0.5, true)
			Expect(n.maintenanceTick()).To(Equal(n.cfg.DCSEG.MaintenanceInterval))
		})

		It("uses a positive default interval", func() {
			n = testNode(0.5, true)
			Expect(n.cfg.DCSEG.MaintenanceInterval).To(BeNumerically(">", time.Duration(0)))
		})
	})
})
