package hk_test

import (
	"time"

	"github.com/sirikata/space/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback and reschedules", func() {
		fired := make(chan struct{}, 8)
		hk.Reg("t1", func() time.Duration {
			fired <- struct{}{}
			return 10 * time.Millisecond
		}, 5*time.Millisecond)
		defer hk.Unreg("t1")

		Eventually(fired, time.Second).Should(Receive())
		Eventually(fired, time.Second).Should(Receive())
	})

	It("stops rescheduling once the callback returns non-positive", func() {
		calls := 0
		done := make(chan struct{})
		hk.Reg("t2", func() time.Duration {
			calls++
			if calls >= 1 {
				close(done)
				return 0
			}
			return time.Millisecond
		}, time.Millisecond)

		Eventually(done, time.Second).Should(BeClosed())
	})

	It("unregisters cleanly", func() {
		fired := make(chan struct{}, 8)
		hk.Reg("t3", func() time.Duration {
			fired <- struct{}{}
			return 5 * time.Millisecond
		}, time.Millisecond)
		Eventually(fired, time.Second).Should(Receive())
		hk.Unreg("t3")
	})
})
