// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Command tree and global flags.
//
// Usage:
//   turochat                        Start an interactive chat
//   turochat ask "question"         One-shot question
//   turochat auth login             Store an API key
//   turochat history list           List saved conversations
//
// Global Flags:
//   --config PATH        Use a specific config file
//   --ephemeral          Keep everything in memory for this run
//   --json               Machine-readable output
//   --driver NAME        Override storage.driver
//   --storage-path PATH  Override storage.path
//   --model NAME         Override cloud.model
//   --base-url URL       Override cloud.base_url
//   --log-level LEVEL    Override log.level

package cli

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeranaias/turochat/internal/config"
)

// Version information (set from main)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// annotationREPL marks commands that run the interactive chat loop. They
// handle Ctrl+C themselves by cancelling the in-flight request.
const annotationREPL = "turochat/repl"

// rootOptions carries global flag state for one command tree.
type rootOptions struct {
	configPath string
	ephemeral  bool
	jsonOutput bool

	// flags holds the per-run overrides bound from persistent flags.
	flags *viper.Viper
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{flags: viper.New()}

	root := &cobra.Command{
		Use:           "turochat",
		Short:         "Chat with an OpenAI-compatible model from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationREPL: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return NewCommandError("turochat", "load .env", "invalid file", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, "")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.turochat/config.toml)")
	pf.BoolVar(&opts.ephemeral, "ephemeral", false, "keep conversations and key in memory only")
	pf.BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	pf.String("driver", "", "storage driver: file, sqlite, bolt, redis, memory")
	pf.String("storage-path", "", "storage directory or database file")
	pf.String("model", "", "model identifier")
	pf.String("base-url", "", "completion endpoint root URL")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"driver", "storage-path", "model", "base-url", "log-level"} {
		// Lookup cannot fail for flags registered above.
		_ = opts.flags.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newChatCommand(opts),
		newAskCommand(opts),
		newAuthCommand(opts),
		newHistoryCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.flags.IsSet("driver") {
		cfg.Storage.Driver = o.flags.GetString("driver")
	}
	if o.flags.IsSet("storage-path") {
		cfg.Storage.Path = o.flags.GetString("storage-path")
	}
	if o.flags.IsSet("model") {
		cfg.Cloud.Model = o.flags.GetString("model")
	}
	if o.flags.IsSet("base-url") {
		cfg.Cloud.BaseURL = o.flags.GetString("base-url")
	}
	if o.flags.IsSet("log-level") {
		cfg.Log.Level = o.flags.GetString("log-level")
	}
	if o.ephemeral {
		cfg.Storage.Driver = config.DriverMemory
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads config, wires an App and runs fn with it.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if !runsREPL(root, args) {
		// One-shot commands stop on Ctrl+C.
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		jsonMode := false
		if cmd != nil {
			jsonMode, _ = cmd.Flags().GetBool("json")
		}
		if jsonMode {
			DisplayError(stdout, err, true)
		} else {
			DisplayError(stderr, err, false)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}

// runsREPL reports whether args resolve to a command that runs the chat loop.
func runsREPL(root *cobra.Command, args []string) bool {
	cmd, _, err := root.Find(args)
	if err != nil || cmd == nil {
		return false
	}
	return cmd.Annotations[annotationREPL] == "true"
}
