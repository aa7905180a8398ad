// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler.
//
// Command: chat [ID]
// Short:   Start an interactive chat session, optionally resuming ID
//
// Interactive Commands (during chat):
//   /help, /h            Show available commands
//   /new                 Start a new conversation
//   /list, /ls           List saved conversations
//   /load ID             Switch to a saved conversation
//   /rename TITLE        Rename the current conversation
//   /delete              Delete the current conversation
//   /attach PATH         Send an image file
//   /history             Reprint the current conversation
//   /status, /s          Show session details
//   /logout              Forget the API key and exit
//   /quit, /q            Exit chat
//   Ctrl+C               Cancel the pending reply
//   Ctrl+D               Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/turochat/internal/config"
	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/session"
	"github.com/jeranaias/turochat/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlashCommand)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatSession is the REPL's view of one running chat.
type chatSession struct {
	app      *App
	renderer *Renderer
	out      io.Writer
	errOut   io.Writer
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "chat [ID]",
		Short:       "Start an interactive chat session",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationREPL: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runChat(cmd, opts, id)
		},
	}
}

// runChat runs the REPL until the user quits.
func runChat(cmd *cobra.Command, opts *rootOptions, resumeID string) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	return opts.withApp(cmd, func(ctx context.Context, app *App) error {
		if _, err := app.Credential(ctx); err != nil {
			return err
		}

		s := &chatSession{
			app:      app,
			renderer: NewRenderer(app.Config.UI),
			out:      cmd.OutOrStdout(),
			errOut:   cmd.ErrOrStderr(),
		}
		if resumeID != "" {
			if err := s.load(ctx, resumeID); err != nil {
				return err
			}
		}
		s.printWelcome()

		input := NewChatCLI()
		defer input.Close()

		// Ctrl+C outside the prompt cancels the pending reply.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			for range sigChan {
				if app.Controller.State() == session.StateSending {
					app.Controller.Cancel()
				}
			}
		}()

		for {
			line, err := input.ReadInput(RenderConditional(PromptStyle, "you> "))
			if err != nil {
				// Ctrl+C at the prompt, Ctrl+D or a closed terminal.
				fmt.Fprintln(s.out)
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
				return nil
			}

			if strings.HasPrefix(line, "/") {
				cont, err := s.handleSlashCommand(ctx, line)
				if err != nil {
					s.printError(err)
				}
				if !cont {
					return nil
				}
				continue
			}

			s.send(ctx, line)
		}
	})
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// send runs one request cycle and prints the reply or the failure.
func (s *chatSession) send(ctx context.Context, content string) {
	before := len(s.app.Controller.Messages())
	if err := s.app.Controller.SendMessage(ctx, content); err != nil {
		s.printError(err)
		return
	}
	s.printResult(before)
}

// attach uploads an image file and prints the reply.
func (s *chatSession) attach(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return NewCommandError("attach", "open", path, err)
	}
	defer f.Close()

	before := len(s.app.Controller.Messages())
	if err := s.app.Controller.UploadFile(ctx, uploadFor(path, f)); err != nil {
		return err
	}
	s.printResult(before)
	return nil
}

// printResult prints the messages after index before, skipping the user's
// own text, then the cycle's failure if one was recorded.
func (s *chatSession) printResult(before int) {
	snap := s.app.Controller.Snapshot()
	if before < len(snap.Messages) {
		for _, msg := range snap.Messages[before:] {
			if msg.Role == model.RoleUser && !msg.HasAttachment() {
				continue
			}
			fmt.Fprintln(s.out)
			s.renderer.WriteMessage(s.out, msg)
		}
	}
	if snap.Err != nil {
		s.printError(snap.Err)
	}
}

// uploadFor describes the file at path for UploadFile.
func uploadFor(path string, r io.Reader) session.Upload {
	return session.Upload{
		Name:      filepath.Base(path),
		MediaType: mediaTypeFor(path),
		Reader:    r,
	}
}

// mediaTypeFor guesses a media type from the file extension.
func mediaTypeFor(path string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		return "application/octet-stream"
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var slashCommands = []struct {
	cmd  string
	desc string
}{
	{"/help", "Show this help"},
	{"/new", "Start a new conversation"},
	{"/list", "List saved conversations"},
	{"/load ID", "Switch to a saved conversation"},
	{"/rename TITLE", "Rename the current conversation"},
	{"/delete", "Delete the current conversation"},
	{"/attach PATH", "Send an image file"},
	{"/history", "Reprint the current conversation"},
	{"/status", "Show session details"},
	{"/logout", "Forget the API key and exit"},
	{"/quit", "Exit chat"},
}

// parseSlashCommand splits "/cmd arg..." into a lowercase name and the raw
// argument string.
func parseSlashCommand(input string) (name, rest string) {
	input = strings.TrimSpace(input)
	name, rest, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func completeSlashCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		name, _, _ := strings.Cut(c.cmd, " ")
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	return out
}

// handleSlashCommand runs one slash command. It returns false when the
// REPL should exit.
func (s *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	name, rest := parseSlashCommand(input)
	ctl := s.app.Controller

	switch name {
	case "/help", "/h", "/?":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new":
		ctl.StartNewChat()
		fmt.Fprintln(s.out, RenderConditional(SuccessStyle, "[New conversation]"))

	case "/list", "/ls":
		summaries := ctl.GetAllChats(ctx)
		if err := ctl.LastError(); err != nil {
			return true, err
		}
		s.printList(summaries)

	case "/load", "/open":
		if rest == "" {
			return true, ErrMissingArgument("ID", "/load conv_abc123")
		}
		if err := s.load(ctx, rest); err != nil {
			return true, err
		}
		s.renderer.WriteMessages(s.out, ctl.Messages())

	case "/rename":
		id := ctl.ConversationID()
		if id == "" {
			return true, &ValidationError{Field: "conversation", Reason: "nothing saved yet; send a message first"}
		}
		if err := ctl.RenameChat(ctx, id, rest); err != nil {
			return true, err
		}
		if err := ctl.LastError(); err != nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Renamed to %q\n", RenderConditional(SuccessStyle, "[OK]"), rest)

	case "/delete":
		id := ctl.ConversationID()
		ctl.DeleteCurrentChat(ctx)
		if err := ctl.LastError(); err != nil {
			return true, err
		}
		if id == "" {
			fmt.Fprintln(s.out, RenderConditional(SuccessStyle, "[Conversation cleared]"))
		} else {
			fmt.Fprintf(s.out, "%s Deleted %s\n", RenderConditional(SuccessStyle, "[OK]"), id)
		}

	case "/attach", "/upload":
		if rest == "" {
			return true, ErrMissingArgument("PATH", "/attach ./diagram.png")
		}
		return true, s.attach(ctx, rest)

	case "/history":
		s.renderer.WriteMessages(s.out, ctl.Messages())

	case "/status", "/s":
		s.printStatus()

	case "/logout":
		ctl.Logout(ctx)
		if err := ctl.LastError(); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, RenderConditional(SuccessStyle, "[Logged out]"))
		return false, nil

	default:
		return true, &ValidationError{Field: "command", Value: name, Reason: "unknown command", Example: "/help"}
	}
	return true, nil
}

// load switches to id, reporting a miss even when loading is lenient.
func (s *chatSession) load(ctx context.Context, id string) error {
	ctl := s.app.Controller
	ctl.LoadChat(ctx, id)
	if err := ctl.LastError(); err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) {
			return &NotFoundError{Resource: "conversation", ID: id}
		}
		return err
	}
	if ctl.ConversationID() != id {
		return &NotFoundError{Resource: "conversation", ID: id}
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) printWelcome() {
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "turochat"))
	fmt.Fprintln(s.out, RenderSeparator(30))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), RenderConditional(ValueStyle, s.app.Gateway.Model()))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Storage:"), RenderConditional(ValueStyle, s.app.Config.Storage.Driver))
	if id := s.app.Controller.ConversationID(); id != "" {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Resumed:"), RenderConditional(ValueStyle, id))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printHelp() {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "Available Commands"))
	fmt.Fprintln(s.out, RenderSeparator(20))
	for _, c := range slashCommands {
		fmt.Fprintf(s.out, "  %s %s\n", fmt.Sprintf("%-15s", c.cmd), RenderConditional(DimStyle, c.desc))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Tip: Ctrl+C cancels a pending reply, Ctrl+D exits"))
}

func (s *chatSession) printList(summaries []storage.Summary) {
	fmt.Fprint(s.out, storage.FormatList(summaries))
	if id := s.app.Controller.ConversationID(); id != "" {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Active:"), id)
	}
}

func (s *chatSession) printStatus() {
	snap := s.app.Controller.Snapshot()
	id := snap.ConversationID
	if id == "" {
		id = "(unsaved)"
	}
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "Session Status"))
	fmt.Fprintln(s.out, RenderSeparator(20))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Conversation:"), id)
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Messages:"), len(snap.Messages))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("State:"), snap.State)
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), s.app.Gateway.Model())
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Storage:"), s.app.Config.Storage.Driver)
}

func (s *chatSession) printError(err error) {
	fmt.Fprintf(s.errOut, "%s %v\n", RenderConditional(ErrorStyle, "[Error]"), err)
}
