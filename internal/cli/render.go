// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Message rendering for the REPL and one-shot commands.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/jeranaias/turochat/internal/config"
	"github.com/jeranaias/turochat/internal/model"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Renderer formats conversation messages for a terminal or a pipe.
type Renderer struct {
	markdown *glamour.TermRenderer
	width    int
}

// NewRenderer builds a renderer for the UI config. Markdown is only used
// when enabled and stdout is a terminal.
func NewRenderer(cfg config.UIConfig) *Renderer {
	r := &Renderer{width: GetTerminalWidth()}
	if !cfg.Markdown || !IsStdoutTTY() {
		return r
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(resolveTheme(cfg.Theme)),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		return r
	}
	r.markdown = md
	return r
}

// resolveTheme maps the configured theme to a glamour standard style.
func resolveTheme(theme string) string {
	switch strings.ToLower(theme) {
	case "dark":
		return "dark"
	case "light":
		return "light"
	case "notty", "ascii":
		return "notty"
	default:
		if termenv.HasDarkBackground() {
			return "dark"
		}
		return "light"
	}
}

// renderContent renders markdown content for terminal display.
// Returns the wrapped original content if rendering fails or is disabled.
func (r *Renderer) renderContent(content string) string {
	if r.markdown == nil {
		return WrapText(content, r.width)
	}
	rendered, err := r.markdown.Render(content)
	if err != nil {
		return WrapText(content, r.width)
	}
	return strings.TrimRight(rendered, "\n")
}

// WriteMessage writes one message with its role label.
func (r *Renderer) WriteMessage(w io.Writer, msg model.Message) {
	fmt.Fprintln(w, RenderRole(msg.Role))
	if msg.HasAttachment() {
		fmt.Fprintln(w, RenderConditional(DimStyle,
			fmt.Sprintf("[attachment: %s (%s)]", msg.AttachmentName, msg.AttachmentMediaType)))
	}
	if msg.IsImage() {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, r.renderContent(msg.Content))
	fmt.Fprintln(w)
}

// WriteMessages writes a transcript.
func (r *Renderer) WriteMessages(w io.Writer, msgs []model.Message) {
	for _, msg := range msgs {
		r.WriteMessage(w, msg)
	}
}
