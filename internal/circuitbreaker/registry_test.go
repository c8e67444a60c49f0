package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fleet-health/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(5, 30*time.Second)
	})

	Describe("GetBreaker", func() {
		It("should return the same breaker for the same destination", func() {
			cb1 := registry.GetBreaker("webhook")
			cb2 := registry.GetBreaker("webhook")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return different breakers for different destinations", func() {
			cb1 := registry.GetBreaker("webhook")
			cb2 := registry.GetBreaker("events")
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should use the registry threshold", func() {
			registry = circuitbreaker.NewRegistry(2, time.Minute)
			cb := registry.GetBreaker("webhook")

			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should handle concurrent calls safely", func() {
			const goroutines = 100

			var wg sync.WaitGroup
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					Expect(registry.GetBreaker("webhook")).NotTo(BeNil())
				}()
			}
			wg.Wait()

			Expect(registry.Stats()).To(HaveLen(1))
		})
	})

	Describe("Stats", func() {
		It("should return the state of every breaker", func() {
			registry.GetBreaker("webhook")
			events := registry.GetBreaker("events")
			for i := 0; i < 5; i++ {
				events.RecordFailure()
			}

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["webhook"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["events"]).To(Equal(circuitbreaker.StateOpen))
		})
	})
})
