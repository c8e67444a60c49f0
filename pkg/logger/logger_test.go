package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fleet-health/pkg/logger"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logger Suite")
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a stdout logger", func() {
			Expect(logger.New("info", true, "dev")).NotTo(BeNil())
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("level names",
			func(name string, expected slog.Level) {
				Expect(logger.ParseLevel(name)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "warn", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("upper case", "WARN", slog.LevelWarn),
			Entry("unknown defaults to info", "verbose", slog.LevelInfo),
			Entry("empty defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("NewWithWriter", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = &bytes.Buffer{}
		})

		It("should write JSON with the environment attribute in prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "prod")
			log.Info("Service is down", slog.String("service", "billing"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "Service is down"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("service", "billing"))
		})

		It("should write text outside prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "dev")
			log.Info("Health check started")

			Expect(buf.String()).To(ContainSubstring(`msg="Health check started"`))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should respect the level", func() {
			log := logger.NewWithWriter(buf, "warn", false, "dev")

			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(context.Background(), slog.LevelWarn)).To(BeTrue())

			log.Info("dropped")
			Expect(buf.Len()).To(BeZero())
		})

		It("should add the source location when asked", func() {
			log := logger.NewWithWriter(buf, "info", true, "prod")
			log.Info("with source")

			Expect(buf.String()).To(ContainSubstring(`"source"`))
		})
	})
})
