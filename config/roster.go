package config

import (
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

type rosterFile struct {
	Services []service.Descriptor `yaml:"services"`
}

// LoadRoster reads a YAML roster file of the form
//
//	services:
//	  - name: billing
//	    address: billing.internal
//	    port: 8443
//	    auth_required: true
func LoadRoster(path string) ([]service.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}

	if err := validation.Validate(file.Services,
		validation.Each(validation.By(validateDescriptor)),
		validation.By(validateUniqueNames),
	); err != nil {
		return nil, fmt.Errorf("invalid roster file %s: %w", path, err)
	}

	return file.Services, nil
}

// Roster returns the inline services followed by those of the roster file.
// A name defined in both places is an error.
func (c *Config) Roster() ([]service.Descriptor, error) {
	roster := append([]service.Descriptor(nil), c.Services...)

	if c.RosterFile != "" {
		fromFile, err := LoadRoster(c.RosterFile)
		if err != nil {
			return nil, err
		}
		roster = append(roster, fromFile...)
	}

	if err := validateUniqueNames(roster); err != nil {
		return nil, err
	}

	return roster, nil
}

func validateDescriptor(value interface{}) error {
	d, ok := value.(service.Descriptor)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a service descriptor")
	}

	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Address, validation.Required, is.Host),
		validation.Field(&d.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func validateUniqueNames(value interface{}) error {
	descriptors, ok := value.([]service.Descriptor)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of service descriptors")
	}

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if seen[d.Name] {
			return validation.NewError("validation_duplicate_service", fmt.Sprintf("duplicate service name %q", d.Name))
		}
		seen[d.Name] = true
	}

	return nil
}
