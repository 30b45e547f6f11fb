package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrNoStagedConfig   = errors.New("no staged configuration to apply")
	ErrModelNotFound    = errors.New("model not configured")
	ErrProviderNotFound = errors.New("provider not found")
)

type route struct {
	provider Provider
	mapping  ModelMapping
}

// Store owns the active and staged configuration snapshots, the on-disk
// document, and the model routing index. One mutex serializes every public
// operation end to end, including the local file write; it is never held
// across network I/O.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	active ProxyConfig
	staged Staged
	index  map[string]route
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the backing document.
func (s *Store) Path() string {
	return s.path
}

// Startup loads the document, creating it with an empty provider list if
// absent, and establishes active == staged with no restart pending.
// Idempotent: later calls are no-ops.
func (s *Store) Startup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		if err := s.writeLocked(ProxyConfig{Providers: []Provider{}}); err != nil {
			return err
		}
	}

	cfg, assigned, err := s.readLocked()
	if err != nil {
		return err
	}

	// Ids assigned to hand-edited providers are written back immediately so
	// they stay stable across restarts.
	if assigned {
		if err := s.writeLocked(cfg); err != nil {
			return err
		}
	}

	s.active = cfg
	s.staged = Staged{Config: cfg.clone(), NeedsRestart: false, StagedAt: nil}
	s.rebuildIndexLocked()
	s.loaded = true

	return nil
}

// Active returns a snapshot of the configuration requests are served from.
func (s *Store) Active() ProxyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active.clone()
}

// StagedSnapshot returns what would become active on the next apply.
func (s *Store) StagedSnapshot() Staged {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stagedLocked()
}

// Stage validates the candidate document and, if it passes as a whole,
// replaces the staged snapshot, persists it, and marks a restart as needed.
// The active configuration, the routing index, and any pooled clients are
// untouched until apply.
func (s *Store) Stage(candidate ProxyConfig) (Staged, error) {
	if err := candidate.Validate(); err != nil {
		return Staged{}, err
	}

	candidate = candidate.clone()
	for i := range candidate.Providers {
		if candidate.Providers[i].ID == "" {
			candidate.Providers[i].ID = uuid.NewString()
		}
	}

	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(candidate); err != nil {
		return Staged{}, err
	}

	s.staged = Staged{Config: candidate, NeedsRestart: true, StagedAt: &now}

	return s.stagedLocked(), nil
}

// Apply promotes the staged configuration to active, persists it, rebuilds
// the routing index wholesale, and clears the restart flag. Fails if nothing
// has been staged since startup.
func (s *Store) Apply() (Staged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged.StagedAt == nil {
		return Staged{}, ErrNoStagedConfig
	}

	if err := s.writeLocked(s.staged.Config); err != nil {
		return Staged{}, err
	}

	s.active = s.staged.Config.clone()
	s.rebuildIndexLocked()
	s.staged.NeedsRestart = false

	return s.stagedLocked(), nil
}

// LookupModel resolves a proxy-visible model name against the active index.
func (s *Store) LookupModel(proxyName string) (Provider, ModelMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.index[proxyName]
	if !ok {
		return Provider{}, ModelMapping{}, fmt.Errorf("%w: %s", ErrModelNotFound, proxyName)
	}

	return r.provider, r.mapping, nil
}

// GetProvider looks up a provider by id in the active configuration.
func (s *Store) GetProvider(id string) (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, provider := range s.active.Providers {
		if provider.ID == id {
			return provider, nil
		}
	}

	return Provider{}, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

// rebuildIndexLocked rebuilds the routing index from the active snapshot.
// Always wholesale, never patched incrementally.
func (s *Store) rebuildIndexLocked() {
	index := make(map[string]route)

	for _, provider := range s.active.Providers {
		for _, mapping := range provider.Models {
			index[mapping.ProxyName] = route{provider: provider, mapping: mapping}
		}
	}

	s.index = index
}

func (s *Store) stagedLocked() Staged {
	out := Staged{
		Config:       s.staged.Config.clone(),
		NeedsRestart: s.staged.NeedsRestart,
	}

	if s.staged.StagedAt != nil {
		at := *s.staged.StagedAt
		out.StagedAt = &at
	}

	return out
}

// readLocked loads and validates the document, assigning ids to providers
// that lack one. The second return reports whether any id was assigned.
func (s *Store) readLocked() (ProxyConfig, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ProxyConfig{}, false, fmt.Errorf("read config file: %w", err)
	}

	var cfg ProxyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ProxyConfig{}, false, fmt.Errorf("%w: unmarshal config file: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return ProxyConfig{}, false, err
	}

	assigned := false

	for i := range cfg.Providers {
		if cfg.Providers[i].ID == "" {
			cfg.Providers[i].ID = uuid.NewString()
			assigned = true
		}
	}

	return cfg, assigned, nil
}

func (s *Store) writeLocked(cfg ProxyConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
