// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tributary/tributary/internal/buildinfo"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tributary",
		Short:         "Stream aggregator for Stremio",
		Long:          "Tributary aggregates upstream Stremio addons into one filtered, ranked and deduplicated stream list, backed by an anime identity database.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunUpdateCommand())
	rootCmd.AddCommand(RunCacheCommand())
	rootCmd.AddCommand(RunConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err.Error())
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Print(buildinfo.String())
		},
	}
}
