package config

import "errors"

var (
	// ErrNoStagedConfig reports a group or end marker arriving before
	// the scalar block that opens a distribution sequence.
	ErrNoStagedConfig = errors.New("config: no staged configuration")
)

// Store holds a process's live configuration and the staging area a
// distribution sequence builds up. The live copy is replaced only by
// Commit, so an interrupted sequence leaves it untouched.
type Store struct {
	active *Config
	staged *Config
}

// Active returns the live configuration, nil before the first commit.
func (s *Store) Active() *Config {
	return s.active
}

// BeginUpdate starts staging a new configuration from its scalar
// block, discarding any half-received previous attempt.
func (s *Store) BeginUpdate(scalars *Config) {
	scalars.Groups = nil
	s.staged = scalars
}

// AddGroup appends one group to the staged configuration.
func (s *Store) AddGroup(g *Group) error {
	if s.staged == nil {
		return ErrNoStagedConfig
	}
	s.staged.Groups = append(s.staged.Groups, g)
	return nil
}

// Commit adopts the staged configuration as live. Scalars and the
// group collection are replaced wholesale.
func (s *Store) Commit() error {
	if s.staged == nil {
		return ErrNoStagedConfig
	}
	if s.active == nil {
		s.active = s.staged
	} else {
		s.active.Merge(s.staged)
	}
	s.staged = nil
	return nil
}
