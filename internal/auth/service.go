// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// PasswordStore persists a single hashed management password (spec.md §4.8).
type PasswordStore interface {
	Load() (hash string, ok bool, err error)
	Save(hash string) error
}

// Service checks requests against the single optional shared management
// password. It has no notion of users, sessions, or API keys: spec.md scopes
// auth to "a single optional shared password".
type Service struct {
	mu    sync.RWMutex
	store PasswordStore
	hash  string
	set   bool
}

// NewService loads any previously persisted password hash from store.
func NewService(store PasswordStore) (*Service, error) {
	s := &Service{store: store}

	hash, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load password state: %w", err)
	}
	s.hash = hash
	s.set = ok

	return s, nil
}

// SetPassword hashes and persists a new management password. Passing an
// empty string disables auth (the stored hash is cleared).
func (s *Service) SetPassword(_ context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if password == "" {
		s.hash = ""
		s.set = false
		if err := s.store.Save(""); err != nil {
			return fmt.Errorf("clear password: %w", err)
		}
		log.Info().Msg("management password cleared; auth disabled")
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.Save(hash); err != nil {
		return fmt.Errorf("persist password: %w", err)
	}

	s.hash = hash
	s.set = true
	return nil
}

// Enabled reports whether a management password has been configured.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Check compares a plaintext password against the stored hash. When no
// password is set, every check fails closed (callers should consult
// Enabled() first to decide whether auth applies at all).
func (s *Service) Check(_ context.Context, password string) bool {
	s.mu.RLock()
	hash, set := s.hash, s.set
	s.mu.RUnlock()

	if !set {
		return false
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil {
		log.Warn().Err(err).Msg("failed to verify management password")
		return false
	}
	return ok
}
