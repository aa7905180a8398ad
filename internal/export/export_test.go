// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/storage"
)

func testConversation() *storage.Conversation {
	return &storage.Conversation{
		ID:    "conv_test",
		Title: "Go <questions>",
		Messages: []model.Message{
			model.NewUserMessage("What is `ctx`?"),
			model.NewAssistantMessage("It carries deadlines.\n\n```go\nctx, cancel := context.WithCancel(parent)\n```\n\nAlways call cancel."),
			model.NewAttachmentMessage("pic.png", "image/png", []byte{1, 2, 3}),
		},
		LastUpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func TestForFormat(t *testing.T) {
	for _, format := range Formats {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		require.Equal(t, "."+format, exp.FileExtension())
		require.NotEmpty(t, exp.MimeType())
	}

	_, err := ForFormat("pdf", nil)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMarkdownExporter(t *testing.T) {
	data, err := NewMarkdownExporter().Export(testConversation())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# Go <questions>"))

	_, err = NewMarkdownExporter().Export(nil)
	require.ErrorIs(t, err, ErrEmptyConversation)
}

func TestJSONExporter(t *testing.T) {
	data, err := NewJSONExporter().Export(testConversation())
	require.NoError(t, err)

	var conv storage.Conversation
	require.NoError(t, json.Unmarshal(data, &conv))
	require.Equal(t, "conv_test", conv.ID)
	require.Len(t, conv.Messages, 3)
}

func TestHTMLExporter(t *testing.T) {
	data, err := NewHTMLExporter(nil).Export(testConversation())
	require.NoError(t, err)
	page := string(data)

	require.Contains(t, page, "<title>Go &lt;questions&gt;</title>")
	require.Contains(t, page, `<body class="dark-theme">`)
	require.Contains(t, page, `<code class="inline-code">ctx</code>`)
	require.Contains(t, page, `<div class="code-lang">go</div>`)
	require.Contains(t, page, "ctx, cancel := context.WithCancel(parent)")
	require.Contains(t, page, "<p>Always call cancel.</p>")
	require.Contains(t, page, `<img src="data:image/png;base64,AQID" alt="pic.png">`)
	require.Contains(t, page, `<div class="message assistant-message">`)
	require.NotContains(t, page, "\x00")
}

func TestHTMLExporter_LightThemeNoMetadata(t *testing.T) {
	exp := NewHTMLExporter(&Options{Theme: "light"})
	data, err := exp.Export(testConversation())
	require.NoError(t, err)
	require.Contains(t, string(data), `<body class="light-theme">`)
	require.NotContains(t, string(data), `<header class="header">`)
}

func TestFormatContent_EscapesMarkup(t *testing.T) {
	out := formatContent("<script>alert(1)</script>")
	require.Equal(t, "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p>", out)

	out = formatContent("line one\nline two")
	require.Equal(t, "<p>line one<br>\nline two</p>", out)
}

func TestExportToFile(t *testing.T) {
	orig := nowFunc
	nowFunc = func() time.Time { return time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = orig })

	dir := t.TempDir()
	path, err := ExportToFile(testConversation(), NewMarkdownExporter(), dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "conversation_Go_-questions-_20250301_123045.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "What is `ctx`?")

	_, err = ExportToFile(nil, NewMarkdownExporter(), dir)
	require.ErrorIs(t, err, ErrEmptyConversation)
}

func TestWriteTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.json")
	require.NoError(t, WriteTo(testConversation(), NewJSONExporter(), path))
	require.FileExists(t, path)
	require.True(t, IsDir(filepath.Dir(path)))
	require.False(t, IsDir(path))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                "conversation",
		"a/b\\c":          "a-b-c",
		"hello world":     "hello_world",
		"tab\there":       "tab_here",
		"\x01ctrl":        "-ctrl",
		"日本語のタイトル": "日本語のタイトル",
	}
	for in, want := range tests {
		require.Equal(t, want, sanitizeFilename(in), in)
	}
	require.Len(t, []rune(sanitizeFilename(strings.Repeat("x", 80))), 50)
}
