/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/friendsincode/soundtrigger/internal/library"
	"github.com/friendsincode/soundtrigger/internal/server"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage registered sound files",
}

var filesAddCmd = &cobra.Command{
	Use:   "add NAME...",
	Short: "Register sound files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilesAdd,
}

var filesRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a sound file from the library and every group",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesRm,
}

var filesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered sound files",
	Args:  cobra.NoArgs,
	RunE:  runFilesLs,
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage groups",
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create NAME [FILE...]",
	Short: "Create a group",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGroupsCreate,
}

var groupsRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupsRm,
}

var groupsSetCmd = &cobra.Command{
	Use:   "set NAME [FILE...]",
	Short: "Replace the files of a group",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGroupsSet,
}

var groupsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List groups",
	Args:  cobra.NoArgs,
	RunE:  runGroupsLs,
}

var exportCmd = &cobra.Command{
	Use:   "export [PATH]",
	Short: "Export files and groups as JSON or YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Replace files and groups from a JSON or YAML document",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var documentFormat string

func init() {
	rootCmd.AddCommand(filesCmd, groupsCmd, exportCmd, importCmd)
	filesCmd.AddCommand(filesAddCmd, filesRmCmd, filesLsCmd)
	groupsCmd.AddCommand(groupsCreateCmd, groupsRmCmd, groupsSetCmd, groupsLsCmd)

	exportCmd.Flags().StringVar(&documentFormat, "format", "", "Document format: json or yaml (default from the file extension, else json)")
	importCmd.Flags().StringVar(&documentFormat, "format", "", "Document format: json or yaml (default from the file extension)")
}

// withCore opens the services for the duration of fn.
func withCore(fn func(ctx context.Context, core *server.Core) error) error {
	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(context.Background(), core)
}

func runFilesAdd(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		for _, name := range args {
			asset, err := core.Library.RegisterAsset(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", asset.Name)
		}
		return nil
	})
}

func runFilesRm(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		if err := core.Library.RemoveAsset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	})
}

func runFilesLs(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		names, err := core.Library.AssetNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	})
}

func runGroupsCreate(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		group, err := core.Library.CreateGroup(ctx, args[0])
		if err != nil {
			return err
		}
		if len(args) > 1 {
			if group, err = core.Library.SetGroupMembers(ctx, group.Name, args[1:]); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d files)\n", group.Name, len(group.Members))
		return nil
	})
}

func runGroupsRm(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		if err := core.Library.DeleteGroup(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}

func runGroupsSet(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		group, err := core.Library.SetGroupMembers(ctx, args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", group.Name, strings.Join(group.MemberNames(), ", "))
		return nil
	})
}

func runGroupsLs(cmd *cobra.Command, args []string) error {
	return withCore(func(ctx context.Context, core *server.Core) error {
		return printGroups(ctx, cmd.OutOrStdout(), core)
	})
}

func printGroups(ctx context.Context, out io.Writer, core *server.Core) error {
	groups, err := core.Library.Groups(ctx)
	if err != nil {
		return err
	}
	current, err := core.Settings.Get(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		marker := " "
		if g.Name == current.Group {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%d files\t%s\n", marker, g.Name, len(g.Members), strings.Join(g.MemberNames(), ", "))
	}
	return tw.Flush()
}

func formatFor(path string) (library.Format, error) {
	if documentFormat != "" {
		return library.ParseFormat(documentFormat)
	}
	return library.FormatFromPath(path), nil
}

func runExport(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	format, err := formatFor(path)
	if err != nil {
		return err
	}

	return withCore(func(ctx context.Context, core *server.Core) error {
		doc, err := core.Library.Export(ctx)
		if err != nil {
			return err
		}
		if path == "" {
			return library.Encode(cmd.OutOrStdout(), doc, format)
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := library.Encode(f, doc, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d files and %d groups to %s\n", len(doc.Files), len(doc.Groups), path)
		return nil
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	format, err := formatFor(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := library.Decode(f, format)
	if err != nil {
		return err
	}

	return withCore(func(ctx context.Context, core *server.Core) error {
		if err := core.Library.Import(ctx, doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d files and %d groups\n", len(doc.Files), len(doc.Groups))
		return nil
	})
}
