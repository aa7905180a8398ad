// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask [MESSAGE...]
// Short:   Send one message and print the reply
//
// Examples:
//   turochat ask "What is a goroutine?"
//   turochat ask --chat conv_abc123 "And a channel?"
//   turochat ask --file diagram.png
//   git diff | turochat ask
//
// Flags:
//   --chat ID      Continue a saved conversation
//   --file PATH    Send an image file instead of text

package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/turochat/internal/model"
)

// maxPipedInput bounds how much of stdin ask will read.
const maxPipedInput = 1 << 20

// AskResult is the --json payload for ask.
type AskResult struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var chatID, file string

	cmd := &cobra.Command{
		Use:   "ask [MESSAGE...]",
		Short: "Send one message and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if strings.TrimSpace(content) == "" && file == "" {
				piped, err := readPiped(cmd.InOrStdin())
				if err != nil {
					return NewCommandError("ask", "read stdin", "could not read input", err)
				}
				content = piped
			}
			if strings.TrimSpace(content) == "" && file == "" {
				return ErrMissingArgument("MESSAGE", `turochat ask "What is a goroutine?"`)
			}

			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				return runAsk(ctx, cmd.OutOrStdout(), app, chatID, content, file, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVarP(&chatID, "chat", "c", "", "continue a saved conversation")
	cmd.Flags().StringVarP(&file, "file", "f", "", "send an image file")
	return cmd
}

func runAsk(ctx context.Context, w io.Writer, app *App, chatID, content, file string, jsonOutput bool) error {
	if _, err := app.Credential(ctx); err != nil {
		return err
	}

	s := &chatSession{app: app, renderer: NewRenderer(app.Config.UI), out: w, errOut: io.Discard}
	if chatID != "" {
		if err := s.load(ctx, chatID); err != nil {
			return err
		}
	}

	ctl := app.Controller
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return NewCommandError("ask", "open", file, err)
		}
		defer f.Close()
		if err := ctl.UploadFile(ctx, uploadFor(file, f)); err != nil {
			return err
		}
	} else if err := ctl.SendMessage(ctx, content); err != nil {
		return err
	}

	snap := ctl.Snapshot()
	if snap.Err != nil {
		return snap.Err
	}

	reply := lastAssistant(snap.Messages)
	if jsonOutput {
		return OutputJSON(w, "ask", AskResult{ConversationID: snap.ConversationID, Reply: reply})
	}
	if IsStdoutTTY() {
		s.renderer.WriteMessage(w, model.NewAssistantMessage(reply))
		return nil
	}
	_, err := io.WriteString(w, reply+"\n")
	return err
}

// lastAssistant returns the content of the last assistant message.
func lastAssistant(msgs []model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

// readPiped reads r unless it is an interactive terminal.
func readPiped(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(io.LimitReader(r, maxPipedInput))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
