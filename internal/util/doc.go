// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the turochat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with the ellipsis counted
//   - PrefixWithEllipsis: keep a prefix and mark the cut (chat titles)
//   - SafeSubstring: clamped rune-index substring
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.PrefixWithEllipsis(firstMessage, 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
