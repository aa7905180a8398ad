// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation commands.
//
// Command: history
// Subcommands:
//   list                        List conversations, newest first
//   show ID                     Print a conversation transcript
//   search QUERY                Find conversations by title or content
//   rename ID TITLE...          Set a conversation title
//   delete ID                   Delete a conversation
//   clear [--yes]               Delete every conversation for this key
//   export ID [--format md|json|html] [--output FILE|DIR]
//
// Only conversations saved under the current API key are visible.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/turochat/internal/export"
	"github.com/jeranaias/turochat/internal/storage"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"chats"},
		Short:   "Manage saved conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if _, err := app.Credential(ctx); err != nil {
					return err
				}
				summaries := app.Controller.GetAllChats(ctx)
				if err := app.Controller.LastError(); err != nil {
					return err
				}
				return writeSummaries(cmd.OutOrStdout(), "history list", "", summaries, opts.jsonOutput)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				conv, err := getConversation(ctx, app, args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return OutputJSON(cmd.OutOrStdout(), "history show", conv)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, RenderConditional(TitleStyle, conv.Title))
				fmt.Fprintf(w, "%s%s\n", RenderLabel("ID:"), conv.ID)
				fmt.Fprintf(w, "%s%s\n", RenderLabel("Updated:"), formatTime(conv.UpdatedTime()))
				fmt.Fprintln(w, RenderSeparator())
				NewRenderer(app.Config.UI).WriteMessages(w, conv.Messages)
				return nil
			})
		},
	}

	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find conversations by title or message content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				key, err := app.Credential(ctx)
				if err != nil {
					return err
				}
				summaries, err := app.Conversations.Search(ctx, query, key)
				if err != nil {
					return err
				}
				return writeSummaries(cmd.OutOrStdout(), "history search", query, summaries, opts.jsonOutput)
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Set a conversation title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, title := args[0], strings.Join(args[1:], " ")
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if _, err := getConversation(ctx, app, id); err != nil {
					return err
				}
				if err := app.Controller.RenameChat(ctx, id, title); err != nil {
					return err
				}
				if err := app.Controller.LastError(); err != nil {
					return NewCommandError("history", "rename", "could not save title", err)
				}
				return writeDone(cmd.OutOrStdout(), "history rename", opts.jsonOutput,
					fmt.Sprintf("Renamed %s to %q", id, strings.TrimSpace(title)))
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if _, err := getConversation(ctx, app, id); err != nil {
					return err
				}
				app.Controller.LoadChat(ctx, id)
				if err := app.Controller.LastError(); err != nil {
					return err
				}
				app.Controller.DeleteCurrentChat(ctx)
				if err := app.Controller.LastError(); err != nil {
					return NewCommandError("history", "delete", "could not remove conversation", err)
				}
				return writeDone(cmd.OutOrStdout(), "history delete", opts.jsonOutput, "Deleted "+id)
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation saved under the current key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return &ValidationError{
					Field:   "yes",
					Reason:  "clearing history cannot be undone; confirm with --yes",
					Example: "turochat history clear --yes",
				}
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				key, err := app.Credential(ctx)
				if err != nil {
					return err
				}
				if err := app.Conversations.ClearAll(ctx, key); err != nil {
					return NewCommandError("history", "clear", "could not clear history", err)
				}
				return writeDone(cmd.OutOrStdout(), "history clear", opts.jsonOutput, "History cleared")
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")

	var format, output string
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a conversation as markdown, JSON or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.ForFormat(strings.ToLower(format), export.DefaultOptions())
			if err != nil {
				return ErrUnsupportedFormat(format, export.Formats)
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				conv, err := getConversation(ctx, app, args[0])
				if err != nil {
					return err
				}

				switch {
				case output == "":
					data, err := exporter.Export(conv)
					if err != nil {
						return NewCommandError("history", "export", "could not encode conversation", err)
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				case export.IsDir(output):
					path, err := export.ExportToFile(conv, exporter, output)
					if err != nil {
						return NewCommandError("history", "export", "could not write to "+output, err)
					}
					return writeDone(cmd.OutOrStdout(), "history export", opts.jsonOutput, "Exported to "+path)
				default:
					if err := export.WriteTo(conv, exporter, output); err != nil {
						return NewCommandError("history", "export", "could not write "+output, err)
					}
					return writeDone(cmd.OutOrStdout(), "history export", opts.jsonOutput, "Exported to "+output)
				}
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "export format: md, json or html")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write to a file, or into a directory")

	cmd.AddCommand(list, show, search, rename, deleteCmd, clearCmd, exportCmd)
	return cmd
}

// getConversation fetches id for the current key, mapping a miss to
// NotFoundError.
func getConversation(ctx context.Context, app *App, id string) (*storage.Conversation, error) {
	key, err := app.Credential(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := app.Conversations.Get(ctx, id, key)
	if errors.Is(err, storage.ErrConversationNotFound) {
		return nil, &NotFoundError{Resource: "conversation", ID: id}
	}
	return conv, err
}

func writeSummaries(w io.Writer, command, query string, summaries []storage.Summary, jsonOutput bool) error {
	if jsonOutput {
		items := make([]ConversationItem, 0, len(summaries))
		for _, s := range summaries {
			items = append(items, ConversationItem{
				ID:        s.ID,
				Title:     s.Title,
				UpdatedAt: s.UpdatedTime().UTC().Format(time.RFC3339),
			})
		}
		return OutputJSON(w, command, ConversationListData{Query: query, Count: len(items), Conversations: items})
	}
	_, err := io.WriteString(w, storage.FormatList(summaries))
	return err
}

func writeDone(w io.Writer, command string, jsonOutput bool, message string) error {
	if jsonOutput {
		return OutputJSON(w, command, map[string]string{"message": message})
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(SuccessStyle, "[OK]"), message)
	return nil
}
