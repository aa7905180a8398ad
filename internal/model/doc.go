// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages.
//
// # Key Types
//
//   - Message: one log entry with role, content and an optional inline attachment
//   - Role: user, assistant or system
//
// # Usage
//
//	msg := model.NewUserMessage("Hello!")
//	img := model.NewAttachmentMessage("cat.png", "image/png", data)
package model
