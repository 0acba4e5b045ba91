/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/soundtrigger/internal/server"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the stored schedule settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change stored settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var settingsFlags scheduleFlags

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	settingsFlags.register(settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		current, err := core.Settings.Get(ctx)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(current)
	})
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	p := settingsFlags.patch(cmd)
	if p.Empty() {
		return errors.New("no settings given, see --help")
	}
	return withCore(func(ctx context.Context, core *server.Core) error {
		updated, err := core.Settings.Update(ctx, p)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(updated)
	})
}
