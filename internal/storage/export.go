// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/util"
)

// =============================================================================
// HISTORY LIST FORMATTING
// =============================================================================

const (
	listIDWidth      = 28
	listUpdatedWidth = 16
	listTitleWidth   = 36
)

// FormatList formats conversation summaries as a table. Titles are padded
// by display width so CJK and emoji titles line up.
func FormatList(summaries []Summary) string {
	if len(summaries) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", listIDWidth+listUpdatedWidth+listTitleWidth+2) + "\n"
	sb.WriteString(rule)
	sb.WriteString(formatPadded("ID", listIDWidth) + " " + formatPadded("Updated", listUpdatedWidth) + " Title\n")
	sb.WriteString(rule)

	for _, s := range summaries {
		updated := s.UpdatedTime().Local().Format("2006-01-02 15:04")
		sb.WriteString(formatPadded(runewidth.Truncate(s.ID, listIDWidth, ""), listIDWidth) + " " +
			formatPadded(updated, listUpdatedWidth) + " " +
			runewidth.Truncate(s.Title, listTitleWidth, util.Ellipsis) + "\n")
	}
	return sb.String()
}

// formatPadded pads s with spaces to the given display width.
func formatPadded(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// =============================================================================
// CONVERSATION EXPORT
// =============================================================================

// ExportMarkdown exports the conversation as a Markdown document with a
// header and one section per message.
func (c *Conversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + c.Title + "\n\n")
	sb.WriteString("ID: " + c.ID + "\n\n")
	sb.WriteString("Updated: " + c.UpdatedTime().UTC().Format(time.RFC3339) + "\n\n")
	sb.WriteString("Messages: " + strconv.Itoa(len(c.Messages)) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "**:\n\n")
		if msg.HasAttachment() {
			sb.WriteString("_Attachment: " + msg.AttachmentName + " (" + msg.AttachmentMediaType + ")_\n\n")
		}
		if msg.Content != "" {
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		}
		sb.WriteString("---\n\n")
	}

	return sb.String()
}

// ExportJSON exports the conversation as pretty-printed JSON in the same
// shape it is stored.
func (c *Conversation) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Preview returns the first user message, truncated for display.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == model.RoleUser && msg.Content != "" {
			return util.TruncateRunes(msg.Content, 80)
		}
	}
	return ""
}
