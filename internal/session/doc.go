// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the session controller, the stateful core of
// turochat.
//
// A Controller keeps the active conversation id, the in-memory message log,
// a send state and the last error. It drives the cycle
//
//	append user message -> persist -> complete -> append reply -> persist
//
// against a ConversationStore and a Gateway. The user message is always
// appended and persisted before the gateway is called; a failed call keeps
// it and records the error.
//
// Only one cycle runs at a time; a second SendMessage or UploadFile returns
// ErrBusy. Switching conversations (new, load, delete, logout) cancels an
// in-flight cycle and drops its late result.
package session
