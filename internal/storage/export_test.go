// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/turochat/internal/model"
)

func sampleConversation() *Conversation {
	return &Conversation{
		ID:    "conv_abc",
		Title: "Hello",
		Messages: []model.Message{
			model.NewUserMessage("Hello"),
			model.NewAssistantMessage("Hi there"),
			model.NewAttachmentMessage("cat.png", "image/png", []byte("png")),
		},
		LastUpdatedAt:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		CredentialFingerprint: "ZnA=",
	}
}

func TestConversation_ExportMarkdown(t *testing.T) {
	md := sampleConversation().ExportMarkdown()

	require.True(t, strings.HasPrefix(md, "# Hello\n"))
	require.Contains(t, md, "ID: conv_abc")
	require.Contains(t, md, "Updated: 2025-03-01T12:00:00Z")
	require.Contains(t, md, "Messages: 3")
	require.Contains(t, md, "**User**")
	require.Contains(t, md, "**Assistant**")
	require.Contains(t, md, "Hi there")
	require.Contains(t, md, "_Attachment: cat.png (image/png)_")
}

func TestConversation_ExportJSON(t *testing.T) {
	conv := sampleConversation()
	data, err := conv.ExportJSON()
	require.NoError(t, err)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, conv.ID, decoded.ID)
	require.Len(t, decoded.Messages, 3)
	require.Contains(t, string(data), "\n  \"title\": \"Hello\"")
}

func TestConversation_Preview(t *testing.T) {
	require.Equal(t, "Hello", sampleConversation().Preview())
	require.Equal(t, "", (&Conversation{}).Preview())

	long := &Conversation{Messages: []model.Message{model.NewUserMessage(strings.Repeat("x", 100))}}
	require.Equal(t, 80, len([]rune(long.Preview())))
}

func TestFormatList(t *testing.T) {
	require.Equal(t, "No conversations found.", FormatList(nil))

	out := FormatList([]Summary{
		{ID: "conv_1", Title: "Trip plan", LastUpdatedAt: time.Now().UnixMilli()},
		{ID: "conv_2", Title: strings.Repeat("長", 50), LastUpdatedAt: time.Now().UnixMilli()},
	})
	require.Contains(t, out, "conv_1")
	require.Contains(t, out, "Trip plan")
	require.Contains(t, out, "...")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	// Title column starts at the same offset on every row.
	require.Equal(t, strings.Index(lines[1], "Title"), strings.Index(lines[3], "Trip plan"))
}

func TestFormatPadded(t *testing.T) {
	require.Equal(t, "ab   ", formatPadded("ab", 5))
	require.Equal(t, "abcdef", formatPadded("abcdef", 3))
	// Wide runes count as two columns.
	require.Equal(t, "日本 ", formatPadded("日本", 5))
}
