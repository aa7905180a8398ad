// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the local storage medium for turochat: a small
// namespaced key/value interface with interchangeable drivers.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// ErrInvalidDriver is returned by Open for an unknown driver name.
var ErrInvalidDriver = errors.New("kv: invalid driver")

// Backend is a durable string-keyed byte store.
//
// Values are replaced wholesale; there is no partial update. Deleting an
// absent key is not an error.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Key builds a namespaced storage key, e.g. Key("turochat", "chats")
// yields "turochat_chats".
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "_" + name
}

// cloneBytes copies b so callers never alias driver-owned memory.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
