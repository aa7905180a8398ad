// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/jeranaias/turochat/internal/util"
)

// KeyPrefix is the prefix every accepted provider key carries.
const KeyPrefix = "sk-"

// Validation errors returned by ValidateKey.
var (
	ErrEmptyKey         = errors.New("API key is required")
	ErrInvalidKeyFormat = errors.New("invalid API key format: key should start with 'sk-'")
)

// ValidateKey checks a key entered by the user before it is stored.
func ValidateKey(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyKey
	}
	if !strings.HasPrefix(value, KeyPrefix) {
		return ErrInvalidKeyFormat
	}
	return nil
}

// Fingerprint derives the partition tag for a key: the base64 of its first
// 8 and last 4 characters. It is deterministic and lossy, not a hash.
func Fingerprint(value string) string {
	head := util.SafeSubstring(value, 0, 8)
	tail := util.SafeSubstring(value, util.RuneLen(value)-4, -1)
	return base64.StdEncoding.EncodeToString([]byte(head + tail))
}

// Mask renders a key for display, keeping only its prefix and last four
// characters.
func Mask(value string) string {
	n := util.RuneLen(value)
	if n <= 8 {
		return strings.Repeat("*", n)
	}
	return util.SafeSubstring(value, 0, 3) + "..." + util.SafeSubstring(value, n-4, -1)
}
