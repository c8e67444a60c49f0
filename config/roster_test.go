package config_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fleet-health/config"
	"github.com/angeloszaimis/fleet-health/internal/service"
)

var _ = Describe("Roster", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("LoadRoster", func() {
		It("should read services in file order", func() {
			path := writeFile(dir, "roster.yaml", `
services:
  - name: payments
    address: payments.internal
    port: 443
    auth_required: true
  - name: inventory
    address: 10.1.0.4
    port: 8080
`)

			roster, err := config.LoadRoster(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(Equal([]service.Descriptor{
				{Name: "payments", Address: "payments.internal", Port: 443, AuthRequired: true},
				{Name: "inventory", Address: "10.1.0.4", Port: 8080},
			}))
		})

		It("should accept an empty roster", func() {
			roster, err := config.LoadRoster(writeFile(dir, "roster.yaml", "services: []\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(BeEmpty())
		})

		It("should fail on a missing file", func() {
			_, err := config.LoadRoster(filepath.Join(dir, "missing.yaml"))
			Expect(err).To(MatchError(ContainSubstring("read roster file")))
		})

		It("should fail on malformed YAML", func() {
			_, err := config.LoadRoster(writeFile(dir, "roster.yaml", "services: [\n"))
			Expect(err).To(MatchError(ContainSubstring("parse roster file")))
		})

		It("should fail on an invalid descriptor", func() {
			_, err := config.LoadRoster(writeFile(dir, "roster.yaml", "services:\n  - name: a\n    address: a.internal\n    port: 70000\n"))
			Expect(err).To(MatchError(ContainSubstring("invalid roster file")))
		})
	})

	Describe("Config.Roster", func() {
		It("should append the roster file after the inline services", func() {
			cfg := &config.Config{
				Services:   []service.Descriptor{{Name: "billing", Address: "billing.internal", Port: 8443}},
				RosterFile: writeFile(dir, "roster.yaml", "services:\n  - {name: search, address: search.internal, port: 9200}\n"),
			}

			roster, err := cfg.Roster()
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(HaveLen(2))
			Expect(roster[0].Name).To(Equal("billing"))
			Expect(roster[1].Name).To(Equal("search"))
		})

		It("should reject a name defined in both places", func() {
			cfg := &config.Config{
				Services:   []service.Descriptor{{Name: "billing", Address: "billing.internal", Port: 8443}},
				RosterFile: writeFile(dir, "roster.yaml", "services:\n  - {name: billing, address: other.internal, port: 8443}\n"),
			}

			_, err := cfg.Roster()
			Expect(err).To(MatchError(ContainSubstring("duplicate service name")))
		})

		It("should return the inline services alone without a roster file", func() {
			cfg := &config.Config{
				Services: []service.Descriptor{{Name: "billing", Address: "billing.internal", Port: 8443}},
			}

			roster, err := cfg.Roster()
			Expect(err).NotTo(HaveOccurred())
			Expect(roster).To(HaveLen(1))
		})
	})
})
