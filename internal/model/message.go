// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages.
package model

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation log.
//
// The JSON layout is the persisted layout; attachment fields are omitted
// when empty so text-only logs stay compact.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Attachment carried instead of (or alongside) text content.
	AttachmentData      string `json:"attachmentData,omitempty"` // data URL
	AttachmentName      string `json:"attachmentName,omitempty"`
	AttachmentMediaType string `json:"attachmentMediaType,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      NewID(),
		Role:    role,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewAttachmentMessage creates a user message that carries an inline
// attachment and no text content.
func NewAttachmentMessage(name, mediaType string, data []byte) Message {
	msg := NewMessage(RoleUser, "")
	msg.AttachmentName = name
	msg.AttachmentMediaType = mediaType
	msg.AttachmentData = EncodeDataURL(mediaType, data)
	return msg
}

// HasAttachment reports whether the message carries an attachment.
func (m Message) HasAttachment() bool {
	return m.AttachmentData != ""
}

// IsImage reports whether the attachment is an image.
func (m Message) IsImage() bool {
	return m.HasAttachment() && IsImageMediaType(m.AttachmentMediaType)
}

// Preview returns a single-line preview of the message.
func (m Message) Preview(maxLen int) string {
	content := m.Content
	if content == "" && m.HasAttachment() {
		content = "[" + m.AttachmentName + "]"
	}
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if maxLen > 3 && len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return content
}

// CloneMessages returns a copy of msgs that shares no backing array.
// Messages are values, so a shallow copy is a full copy.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// ImageMediaTypePrefix is the media type prefix accepted for uploads.
const ImageMediaTypePrefix = "image/"

// IsImageMediaType reports whether mediaType declares an image.
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), ImageMediaTypePrefix)
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}
