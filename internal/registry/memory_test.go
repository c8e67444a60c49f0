package registry_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fleet-health/internal/registry"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

var _ = Describe("Memory", func() {
	var (
		ctx   context.Context
		reg   *registry.Memory
		lamps service.Descriptor
		hls   service.Descriptor
		t0    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = registry.NewMemory()
		lamps = service.Descriptor{Name: "lights", Address: "lights", Port: 3978}
		hls = service.Descriptor{Name: "hls", Address: "192.168.85.13", Port: 3980, AuthRequired: true}
		t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	Describe("Register", func() {
		It("should keep registration order", func() {
			Expect(reg.Register(ctx, []service.Descriptor{lamps, hls})).To(Succeed())

			roster, err := reg.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(Equal([]service.Descriptor{lamps, hls}))
		})

		It("should not hold duplicates", func() {
			moved := lamps
			moved.Port = 4000
			Expect(reg.Register(ctx, []service.Descriptor{lamps, hls, moved})).To(Succeed())

			roster, _ := reg.List(ctx)
			Expect(roster).To(HaveLen(2))
			Expect(roster[0].Port).To(Equal(4000))
		})

		It("should register nothing when a descriptor is unnamed", func() {
			Expect(reg.Register(ctx, []service.Descriptor{lamps, {Address: "x", Port: 80}})).To(MatchError(registry.ErrEmptyName))

			roster, err := reg.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(BeEmpty())
		})

		It("should not create state", func() {
			Expect(reg.Register(ctx, []service.Descriptor{lamps})).To(Succeed())

			_, ok, err := reg.Get(ctx, "lights")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			snap, _ := reg.Snapshot(ctx)
			Expect(snap).To(BeEmpty())
		})

		It("should reject unnamed descriptors", func() {
			err := reg.Register(ctx, []service.Descriptor{{Address: "x", Port: 1}})
			Expect(err).To(MatchError(registry.ErrEmptyName))
		})
	})

	Describe("Commit", func() {
		BeforeEach(func() {
			Expect(reg.Register(ctx, []service.Descriptor{lamps, hls})).To(Succeed())
		})

		It("should report a first sighting as unseen with the assumed-active default", func() {
			prev, seen, err := reg.Commit(ctx, lamps, false, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeFalse())
			Expect(prev.Active).To(BeTrue())

			st, ok, _ := reg.Get(ctx, "lights")
			Expect(ok).To(BeTrue())
			Expect(st.Active).To(BeFalse())
			Expect(st.LastCheckedAt).To(Equal(t0))
			Expect(st.LastTransitionAt).To(BeNil())
		})

		It("should return the pre-update value", func() {
			reg.Commit(ctx, lamps, true, t0)

			prev, seen, err := reg.Commit(ctx, lamps, false, t0.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeTrue())
			Expect(prev.Active).To(BeTrue())

			st, _, _ := reg.Get(ctx, "lights")
			Expect(st.Active).To(BeFalse())
		})

		It("should move LastTransitionAt only on a flip", func() {
			reg.Commit(ctx, lamps, true, t0)
			reg.Commit(ctx, lamps, true, t0.Add(1*time.Minute))

			st, _, _ := reg.Get(ctx, "lights")
			Expect(st.LastTransitionAt).To(BeNil())
			Expect(st.LastCheckedAt).To(Equal(t0.Add(1 * time.Minute)))

			reg.Commit(ctx, lamps, false, t0.Add(2*time.Minute))
			reg.Commit(ctx, lamps, false, t0.Add(3*time.Minute))

			st, _, _ = reg.Get(ctx, "lights")
			Expect(st.LastTransitionAt).NotTo(BeNil())
			Expect(*st.LastTransitionAt).To(Equal(t0.Add(2 * time.Minute)))
			Expect(st.LastCheckedAt).To(Equal(t0.Add(3 * time.Minute)))
		})

		It("should create entries for services missing from the roster", func() {
			stray := service.Descriptor{Name: "weather", Address: "weather", Port: 3978}

			_, seen, err := reg.Commit(ctx, stray, true, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(BeFalse())

			roster, _ := reg.List(ctx)
			Expect(roster).To(ContainElement(stray))
		})

		It("should reject unnamed descriptors", func() {
			_, _, err := reg.Commit(ctx, service.Descriptor{}, true, t0)
			Expect(err).To(MatchError(registry.ErrEmptyName))
		})

		It("should be safe under concurrent commits", func() {
			const goroutines = 100

			var wg sync.WaitGroup
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func(i int) {
					defer wg.Done()
					d := service.Descriptor{Name: fmt.Sprintf("svc-%d", i%10), Address: "h", Port: 1}
					_, _, err := reg.Commit(ctx, d, i%2 == 0, t0.Add(time.Duration(i)*time.Second))
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			snap, err := reg.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap).To(HaveLen(10))
		})

		It("should let exactly one concurrent committer observe a flip", func() {
			reg.Commit(ctx, lamps, true, t0)

			const goroutines = 50
			var (
				wg    sync.WaitGroup
				mutex sync.Mutex
				flips int
			)
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					prev, seen, _ := reg.Commit(ctx, lamps, false, t0.Add(time.Second))
					if seen && prev.Active {
						mutex.Lock()
						flips++
						mutex.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(flips).To(Equal(1))
		})
	})

	Describe("Snapshot", func() {
		It("should list observed services in roster order", func() {
			Expect(reg.Register(ctx, []service.Descriptor{lamps, hls})).To(Succeed())
			reg.Commit(ctx, hls, false, t0)
			reg.Commit(ctx, lamps, true, t0)

			snap, err := reg.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap).To(HaveLen(2))
			Expect(snap[0].Descriptor.Name).To(Equal("lights"))
			Expect(snap[0].State.Active).To(BeTrue())
			Expect(snap[1].Descriptor.Name).To(Equal("hls"))
			Expect(snap[1].State.Active).To(BeFalse())
		})
	})
})

var _ = Describe("Apply", func() {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	DescribeTable("folding an observation",
		func(prev service.State, seen, active, wantActive, wantFlip bool) {
			next := registry.Apply(prev, seen, active, t0)
			Expect(next.Active).To(Equal(wantActive))
			Expect(next.LastCheckedAt).To(Equal(t0))
			if wantFlip {
				Expect(next.LastTransitionAt).NotTo(BeNil())
				Expect(*next.LastTransitionAt).To(Equal(t0))
			} else {
				Expect(next.LastTransitionAt).To(Equal(prev.LastTransitionAt))
			}
		},
		Entry("first sighting, up", registry.Unseen(), false, true, true, false),
		Entry("first sighting, down", registry.Unseen(), false, false, false, false),
		Entry("steady up", service.State{Active: true}, true, true, true, false),
		Entry("steady down", service.State{Active: false}, true, false, false, false),
		Entry("going down", service.State{Active: true}, true, false, false, true),
		Entry("recovering", service.State{Active: false}, true, true, true, true),
	)
})
