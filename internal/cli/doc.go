// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the turochat command line.
//
// The command tree is built with cobra. Every command loads the config,
// wires an App (storage medium, credential store, conversation store,
// completion gateway, session controller) and releases it on return.
//
// Commands:
//
//	turochat [chat [ID]]        interactive REPL
//	turochat ask MESSAGE        one-shot question
//	turochat auth login|logout|status
//	turochat history list|show|search|rename|delete|clear|export
//	turochat config show|init|path
//	turochat version
//
// Errors map to exit codes through GetExitCode. With --json, output and
// errors are JSON documents.
package cli
