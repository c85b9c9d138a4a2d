// Package config holds the newd configuration object: global scalar
// settings plus an ordered collection of named groups, each overriding
// a subset of the scalars.
//
// The supervisor parses the TOML source and distributes the result to
// the children over IPC as a fixed-size scalar block, one record per
// group, and an end marker. Receivers stage the pieces in a Store and
// adopt them atomically when the marker arrives.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/B4PzwL3YVGa6/newd/internal/log"
)

const (
	// MaxText bounds the free-text setting, NUL padding included.
	MaxText = 256
	// MaxGroupName bounds a group name, NUL padding included.
	MaxGroupName = 16
)

// Config is the parsed configuration. Group names are not required to
// be unique; duplicates are kept in order and their interpretation is
// the policy collaborator's business.
type Config struct {
	YesNo     bool     `toml:"yesno"`
	Integer   int32    `toml:"integer"`
	V4Bits    uint8    `toml:"v4_bits" validate:"lte=32"`
	V6Bits    uint8    `toml:"v6_bits" validate:"lte=128"`
	V4Address string   `toml:"v4_address" validate:"omitempty,ip4_addr"`
	V6Address string   `toml:"v6_address" validate:"omitempty,ip6_addr"`
	Text      string   `toml:"text" validate:"lt=256"`
	Groups    []*Group `toml:"group" validate:"dive"`
}

// Group overrides the scalar defaults for one named group.
type Group struct {
	Name      string `toml:"name" validate:"required,max=15"`
	YesNo     bool   `toml:"yesno"`
	Integer   int32  `toml:"integer"`
	V4Bits    uint8  `toml:"v4_bits" validate:"lte=32"`
	V6Bits    uint8  `toml:"v6_bits" validate:"lte=128"`
	V4Address string `toml:"v4_address" validate:"omitempty,ip4_addr"`
	V6Address string `toml:"v6_address" validate:"omitempty,ip6_addr"`
	Text      string `toml:"text" validate:"lt=256"`
}

var validate = validator.New()

// Load reads, parses, and validates the configuration file.
func Load(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(content, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf(derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Configuration loaded from %s (%d groups)", configPath, len(cfg.Groups))
	return &cfg, nil
}

// Validate checks scalar ranges, address syntax, and group fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Merge replaces this configuration with xc: scalar fields wholesale,
// the group collection wholesale (old entries discarded, new adopted
// by reference). No incremental diffing.
func (c *Config) Merge(xc *Config) {
	groups := xc.Groups
	*c = *xc
	c.Groups = groups
}
