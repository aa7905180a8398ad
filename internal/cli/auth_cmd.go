// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - API key management commands.
//
// Command: auth
// Subcommands:
//   login [KEY]   Store an API key (prompts when KEY is omitted)
//   logout        Forget the stored key
//   status        Show the stored key, masked

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/turochat/internal/credential"
)

func newAuthCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored API key",
	}

	var fromStdin bool
	login := &cobra.Command{
		Use:   "login [KEY]",
		Short: "Store an API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				var key string
				switch {
				case len(args) == 1:
					key = args[0]
				case fromStdin || !IsTTY():
					line, err := readLine(cmd.InOrStdin())
					if err != nil {
						return NewCommandError("auth", "login", "could not read key", err)
					}
					key = line
				default:
					line, err := promptSecret("API key: ")
					if err != nil {
						return NewCommandError("auth", "login", "could not read key", err)
					}
					key = line
				}
				return runLogin(ctx, cmd.OutOrStdout(), app, key, opts.jsonOutput)
			})
		},
	}
	login.Flags().BoolVar(&fromStdin, "stdin", false, "read the key from stdin")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				app.Controller.Logout(ctx)
				if err := app.Controller.LastError(); err != nil {
					return NewCommandError("auth", "logout", "could not clear key", err)
				}
				if opts.jsonOutput {
					return OutputJSON(cmd.OutOrStdout(), "auth logout", map[string]bool{"logged_in": false})
				}
				fmt.Fprintln(cmd.OutOrStdout(), RenderConditional(SuccessStyle, "[OK]")+" API key removed")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:     "status",
		Aliases: []string{"whoami"},
		Short:   "Show the stored API key",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				return runStatus(ctx, cmd.OutOrStdout(), app, opts.jsonOutput)
			})
		},
	}

	cmd.AddCommand(login, logout, status)
	return cmd
}

func runLogin(ctx context.Context, w io.Writer, app *App, key string, jsonOutput bool) error {
	key = strings.TrimSpace(key)
	if err := credential.ValidateKey(key); err != nil {
		return err
	}
	if err := app.Credentials.Set(ctx, key); err != nil {
		return NewCommandError("auth", "login", "could not store key", err)
	}

	if jsonOutput {
		return OutputJSON(w, "auth login", WhoAmIData{
			LoggedIn:    true,
			Key:         credential.Mask(key),
			Fingerprint: credential.Fingerprint(key),
			Driver:      app.Config.Storage.Driver,
		})
	}
	fmt.Fprintf(w, "%s API key %s stored (%s)\n",
		RenderConditional(SuccessStyle, "[OK]"),
		credential.Mask(key),
		app.Config.Storage.Driver)
	return nil
}

func runStatus(ctx context.Context, w io.Writer, app *App, jsonOutput bool) error {
	key, ok, err := app.Credentials.Get(ctx)
	if err != nil {
		return err
	}

	data := WhoAmIData{LoggedIn: ok, Driver: app.Config.Storage.Driver}
	if ok {
		data.Key = credential.Mask(key)
		data.Fingerprint = credential.Fingerprint(key)
	}
	if jsonOutput {
		return OutputJSON(w, "auth status", data)
	}

	if !ok {
		fmt.Fprintln(w, RenderConditional(WarningStyle, "Not logged in.")+" Run: turochat auth login")
		return nil
	}
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Key:"), RenderConditional(ValueStyle, data.Key))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Fingerprint:"), RenderConditional(ValueStyle, data.Fingerprint))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Storage:"), RenderConditional(ValueStyle, data.Driver))
	return nil
}

// readLine reads the first line of r.
func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// promptSecret reads a line without echo.
func promptSecret(prompt string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	return line.PasswordPrompt(prompt)
}
