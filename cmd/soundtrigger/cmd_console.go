/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/friendsincode/soundtrigger/internal/scheduler"
	"github.com/friendsincode/soundtrigger/internal/server"
	"github.com/friendsincode/soundtrigger/internal/settings"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive shell to control the scheduler",
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

const consoleHelp = `commands:
  start [group]   start triggering (optionally switching group)
  stop            stop triggering
  status          show the scheduler state
  files           list registered sound files
  groups          list groups
  help            show this help
  quit            leave the console`

// console executes shell commands against a scheduler.
type console struct {
	core      *server.Core
	scheduler *scheduler.Scheduler
	out       io.Writer
}

// exec runs one command line and reports whether the shell should exit.
func (c *console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "start":
		if len(fields) > 1 {
			group := strings.Join(fields[1:], " ")
			if _, err := c.core.Settings.Update(ctx, settings.Patch{Group: &group}); err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
				return false
			}
		}
		if err := c.scheduler.Start(ctx, c.core.Settings); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	case "stop":
		if !c.scheduler.Running() {
			fmt.Fprintln(c.out, "not running")
			return false
		}
		c.scheduler.Stop()
	case "status":
		snap := c.scheduler.Snapshot()
		fmt.Fprintf(c.out, "state: %s\n", snap.State)
		if snap.Running {
			fmt.Fprintf(c.out, "group: %s\nprobability: %.1f%%\n", snap.Group, snap.Probability)
			if snap.Playing != "" {
				fmt.Fprintf(c.out, "playing: %s\n", snap.Playing)
			}
			if snap.LastPlayed != "" {
				fmt.Fprintf(c.out, "last played: %s\n", snap.LastPlayed)
			}
		}
	case "files":
		names, err := c.core.Library.AssetNames(ctx)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		for _, name := range names {
			fmt.Fprintln(c.out, name)
		}
	case "groups":
		if err := printGroups(ctx, c.out, c.core); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q, type help\n", fields[0])
	}
	return false
}

func runConsole(cmd *cobra.Command, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "soundtrigger> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("status"),
			readline.PcItem("files"),
			readline.PcItem("groups"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("init console: %w", err)
	}
	defer rl.Close()

	ctx := context.Background()
	sess, err := openSession(ctx, rl.Stdout())
	if err != nil {
		return err
	}
	defer sess.Close()

	c := &console{core: sess.core, scheduler: sess.scheduler, out: rl.Stdout()}
	fmt.Fprintln(c.out, "type help for commands")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.exec(ctx, line) {
			return nil
		}
	}
}
