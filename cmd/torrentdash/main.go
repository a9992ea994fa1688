// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/torrentdash/internal/buildinfo"
	"github.com/autobrr/torrentdash/internal/config"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var configDir string

	var rootCmd = &cobra.Command{
		Use:   "torrentdash",
		Short: "A live dashboard for a remote torrent backend",
		Long: `torrentdash - polls a torrent backend and keeps a local mirror of its
torrents and the peers of one focused torrent, shown in the terminal or over HTTP.`,
		SilenceUsage: true,
	}

	rootCmd.Version = buildinfo.Version
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (default is OS-specific: ~/.config/torrentdash/ or %APPDATA%\\torrentdash\\)")

	rootCmd.AddCommand(RunWatchCommand(&configDir))
	rootCmd.AddCommand(RunServeCommand(&configDir))
	rootCmd.AddCommand(RunListCommand(&configDir))
	rootCmd.AddCommand(RunAddCommand(&configDir))
	rootCmd.AddCommand(RunRemoveCommand(&configDir))
	rootCmd.AddCommand(RunGenerateConfigCommand(&configDir))
	rootCmd.AddCommand(RunVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of torrentdash",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(buildinfo.String())
		},
	}
}

func RunGenerateConfigCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the dashboard.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/torrentdash/config.toml
- Windows: %APPDATA%\torrentdash\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(*configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}
