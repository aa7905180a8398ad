// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		msg := NewUserMessage("hi")
		require.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
}

func TestRole_Valid(t *testing.T) {
	require.True(t, RoleUser.Valid())
	require.True(t, RoleAssistant.Valid())
	require.True(t, RoleSystem.Valid())
	require.False(t, Role("tool").Valid())
	require.Equal(t, "You", RoleUser.DisplayName())
}

func TestNewAttachmentMessage(t *testing.T) {
	msg := NewAttachmentMessage("cat.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})

	require.Equal(t, RoleUser, msg.Role)
	require.Empty(t, msg.Content)
	require.True(t, msg.HasAttachment())
	require.True(t, msg.IsImage())
	require.Equal(t, "cat.png", msg.AttachmentName)
	require.True(t, strings.HasPrefix(msg.AttachmentData, "data:image/png;base64,"))
	require.Equal(t, "[cat.png]", msg.Preview(40))
}

func TestIsImageMediaType(t *testing.T) {
	require.True(t, IsImageMediaType("image/png"))
	require.True(t, IsImageMediaType(" Image/JPEG"))
	require.False(t, IsImageMediaType("application/pdf"))
	require.False(t, IsImageMediaType(""))
}

func TestCloneMessages_Independent(t *testing.T) {
	orig := []Message{NewUserMessage("a")}
	clone := CloneMessages(orig)
	clone[0].Content = "b"

	require.Equal(t, "a", orig[0].Content)
	require.Len(t, orig, 1)
	require.Nil(t, CloneMessages(nil))
}
