package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/permaweb/ao-cu/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("should fire a registered callback and reschedule it", func() {
		var n int32
		hk.Reg("spec-counter", func() time.Duration {
			atomic.AddInt32(&n, 1)
			return 5 * time.Millisecond
		}, time.Millisecond)

		Eventually(func() int32 {
			return atomic.LoadInt32(&n)
		}, 2*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))

		hk.Unreg("spec-counter")
	})

	It("should stop firing once unregistered", func() {
		var n int32
		hk.Reg("spec-stop", func() time.Duration {
			atomic.AddInt32(&n, 1)
			return 5 * time.Millisecond
		}, time.Millisecond)

		Eventually(func() int32 { return atomic.LoadInt32(&n) }, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 1))
		hk.Unreg("spec-stop")
		snapshot := atomic.LoadInt32(&n)
		time.Sleep(50 * time.Millisecond)
		Expect(atomic.LoadInt32(&n)).To(BeNumerically("<=", snapshot+1))
	})
})
