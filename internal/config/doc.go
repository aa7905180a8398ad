// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for turochat.
//
// # Key Types
//
//   - Config: main configuration structure
//   - CloudConfig: completion endpoint, model and temperature
//   - StorageConfig: local storage driver selection
//   - SessionConfig: session controller behavior
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TUROCHAT_*)
//   - ~/.turochat/config.toml
//   - ~/.turochat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	model := cfg.Cloud.Model
package config
