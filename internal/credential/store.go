// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credential holds the provider API key for the running process.
//
// The key lives in two places: an in-memory cache and a durable copy in the
// local storage medium under "<namespace>_api_key". Reads prefer the cache
// and hydrate it from storage on first use.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/turochat/internal/kv"
	"github.com/jeranaias/turochat/internal/logging"
)

// StorageName is the unnamespaced storage key for the credential.
const StorageName = "api_key"

// Store caches and persists the API key.
type Store struct {
	backend kv.Backend
	key     string
	logger  *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewStore creates a credential store over backend using namespace for the
// storage key. A nil logger discards output.
func NewStore(backend kv.Backend, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		backend: backend,
		key:     kv.Key(namespace, StorageName),
		logger:  logger,
	}
}

// Set caches value and writes it to storage. The format is not validated
// here; see ValidateKey.
func (s *Store) Set(ctx context.Context, value string) error {
	s.mu.Lock()
	s.cached = value
	s.mu.Unlock()

	if err := s.backend.Set(ctx, s.key, []byte(value)); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	s.logger.Debug("credential stored", "fingerprint", Fingerprint(value))
	return nil
}

// Get returns the credential. ok is false when neither the cache nor
// storage holds one.
func (s *Store) Get(ctx context.Context) (value string, ok bool, err error) {
	s.mu.Lock()
	cached := s.cached
	s.mu.Unlock()
	if cached != "" {
		return cached, true, nil
	}

	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}

	value = string(data)
	s.mu.Lock()
	if s.cached == "" {
		s.cached = value
	}
	value = s.cached
	s.mu.Unlock()
	return value, true, nil
}

// Clear removes both the cached and the durable copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	s.logger.Debug("credential cleared")
	return nil
}
