// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for turochat.
//
// All conversations live in one JSON array under a single namespaced key
// of the local storage medium ("turochat_chats" by default). Each record
// carries the fingerprint of the credential that created it, and reads
// only return records whose fingerprint matches the caller's credential.
// The fingerprint is a partition tag, not an access control.
//
// # Key Types
//
//   - Store: create, update, rename, list, get, remove and clear
//   - Conversation: a stored record
//   - Summary: the listing view of a record
//
// # Usage
//
//	store := storage.NewStore(backend, "turochat")
//	id, err := store.Create(ctx, messages, apiKey)
//	summaries, err := store.List(ctx, apiKey)
//	conv, err := store.Get(ctx, id, apiKey)
//
// A missing collection reads as empty. A collection that fails to decode
// is reported as *ParseError and never partially recovered.
package storage
