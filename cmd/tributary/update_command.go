// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/internal/update"
)

const updateRepository = "tributary/tributary"

func RunUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update to the latest release",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if buildinfo.IsDevelop() {
				return errors.New("development builds cannot self-update; install a tagged release")
			}

			updater := update.NewUpdater(update.Config{
				Repository: updateRepository,
				Version:    buildinfo.Version,
			})

			if err := updater.CheckSupported(); err != nil {
				return err
			}

			installed, err := updater.Run(cmd.Context())
			if err != nil {
				return err
			}
			if installed == "" {
				cmd.Printf("Already up to date: %s\n", buildinfo.Version)
				return nil
			}

			cmd.Printf("Updated to %s\n", installed)
			return nil
		},
	}
}
