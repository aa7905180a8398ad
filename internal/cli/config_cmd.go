// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config inspection and version commands.

package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/turochat/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Storage.RedisPassword != "" {
				redacted.Storage.RedisPassword = "********"
			}
			if opts.jsonOutput {
				return OutputJSON(cmd.OutOrStdout(), "config show", redacted)
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.configPath
			if p == "" {
				var err error
				if p, err = config.ConfigPathTOML(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.configPath
			if p == "" {
				var err error
				if p, err = config.ConfigPathTOML(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(p); err == nil && !force {
				return &ValidationError{
					Field:   "config",
					Value:   p,
					Reason:  "file already exists; use --force to overwrite",
					Example: "turochat config init --force",
				}
			}
			if err := config.SaveTOML(config.Default(), p); err != nil {
				return NewCommandError("config", "init", "could not write "+p, err)
			}
			return writeDone(cmd.OutOrStdout(), "config init", opts.jsonOutput, "Wrote "+p)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, path, initCmd)
	return cmd
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    Version,
				"git_commit": GitCommit,
				"build_date": BuildDate,
				"go_version": runtime.Version(),
			}
			if opts.jsonOutput {
				return OutputJSON(cmd.OutOrStdout(), "version", info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "turochat %s (%s, built %s, %s)\n",
				Version, GitCommit, BuildDate, runtime.Version())
			return nil
		},
	}
}
