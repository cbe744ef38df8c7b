package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/go-expect"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

const (
	exitFailure = 1
	exitTimeout = 2
)

// cli is the state shared by the subcommands.
type cli struct {
	logger   *logiface.Logger[logiface.Event]
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	logLevel string
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{in: in, out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:   "goexpect",
		Short: "Automate interactive programs through a pseudo-terminal",
		Long: `goexpect spawns a program attached to a pseudo-terminal, then either runs a
YAML script of send and expect steps against it, or connects it to your
terminal.

Exit codes:
  0  success
  1  failure
  2  an expect step timed out`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(c.logLevel)
			if err != nil {
				return err
			}
			c.logger = stumpy.L.New(
				stumpy.L.WithStumpy(stumpy.WithWriter(c.errOut)),
				stumpy.L.WithLevel(level),
			).Logger()
			return nil
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", logiface.LevelWarning.String(),
		"log level: disabled, emerg, alert, crit, err, warning, notice, info, debug or trace")

	cmd.AddCommand(
		c.newRunCommand(),
		c.newInteractCommand(),
	)

	return cmd
}

func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	switch s {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	}
	return 0, fmt.Errorf("invalid log level: %q", s)
}

func exitCode(err error) int {
	if errors.Is(err, expect.ErrTimeout) {
		return exitTimeout
	}
	return exitFailure
}

// commandArgs validates the program to spawn, following "--".
func commandArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command, e.g. " + cmd.CommandPath() + " -- bash")
	}
	return nil
}
