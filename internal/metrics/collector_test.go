package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fleet-health/internal/circuitbreaker"
	"github.com/angeloszaimis/fleet-health/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	totalProbes := func() int64 { return collector.Snapshot().TotalProbes }

	It("should process EventProbeCompleted", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventProbeCompleted,
			Timestamp: time.Now(),
			Service:   "billing",
			Duration:  40 * time.Millisecond,
			Reachable: false,
			TimedOut:  true,
		})

		Eventually(totalProbes).Should(Equal(int64(1)))
		svc := collector.Snapshot().Services["billing"]
		Expect(svc.Failures).To(Equal(int64(1)))
		Expect(svc.Timeouts).To(Equal(int64(1)))
		Expect(svc.AvgLatency).To(Equal(40 * time.Millisecond))
	})

	It("should process EventTransition", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{Type: metrics.EventTransition, Service: "billing", Active: true})

		Eventually(func() int64 { return collector.Snapshot().TotalTransitions }).Should(Equal(int64(1)))
		Expect(collector.Snapshot().Services["billing"].Active).To(BeTrue())
	})

	It("should process EventCycleCompleted", func() {
		collector.Start(ctx)

		collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventCycleCompleted,
			Timestamp: time.Now(),
			Duration:  250 * time.Millisecond,
		})

		Eventually(func() int64 { return collector.Snapshot().Cycles }).Should(Equal(int64(1)))
		Expect(collector.Snapshot().LastCycleDuration).To(Equal(250 * time.Millisecond))
	})

	It("should drain buffered events on context cancellation", func() {
		for i := 0; i < 5; i++ {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Service: "billing", Reachable: true})
		}

		cancel()
		collector.Start(ctx)

		Eventually(totalProbes).Should(Equal(int64(5)))
	})

	It("should drop events instead of blocking when the buffer is full", func() {
		small := metrics.NewCollector(2, log)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10; i++ {
				small.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Service: "billing"})
			}
		}()
		Eventually(done).Should(BeClosed())

		cancel()
		small.Start(ctx)
		Eventually(func() int64 { return small.Snapshot().TotalProbes }).Should(Equal(int64(2)))
	})

	Describe("Handler", func() {
		It("should serve the snapshot with breaker states", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Service: "billing", Reachable: true})
			Eventually(totalProbes).Should(Equal(int64(1)))

			breakers := circuitbreaker.NewRegistry(1, time.Hour)
			breakers.GetBreaker("webhook").RecordFailure()

			rec := httptest.NewRecorder()
			collector.Handler(breakers).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Services).To(HaveKey("billing"))
			Expect(snap.Breakers).To(HaveKeyWithValue("webhook", "OPEN"))
		})

		It("should omit breakers when none are given", func() {
			rec := httptest.NewRecorder()
			collector.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).NotTo(ContainSubstring("breakers"))
		})
	})
})
