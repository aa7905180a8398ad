// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations to files.
//
// # Supported Formats
//
//   - md: Markdown transcript
//   - json: the stored conversation record
//   - html: standalone page with embedded CSS; image attachments are
//     inlined from their data URLs
//
// # Usage
//
//	exporter, err := export.ForFormat("html", export.DefaultOptions())
//	path, err := export.ExportToFile(conv, exporter, "./exports")
package export
