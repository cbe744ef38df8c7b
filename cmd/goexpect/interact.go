package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeycumines/go-expect"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type interactFlags struct {
	escape      string
	closePolicy string
}

func (c *cli) newInteractCommand() *cobra.Command {
	var f interactFlags
	cmd := &cobra.Command{
		Use:   "interact [flags] -- COMMAND [ARG...]",
		Short: "Connect a command to this terminal",
		Long: `Spawns COMMAND on a pseudo-terminal, and copies between it and this terminal,
until the escape character is typed, or the command's output ends.`,
		Args: commandArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.interact(&f, args)
		},
	}
	cmd.Flags().StringVarP(&f.escape, "escape", "e", "ctrl+]", "escape character, e.g. ctrl+] or ^]")
	cmd.Flags().StringVar(&f.closePolicy, "close", expect.CloseTerminate.String(), "what to do with a running command after escaping: kill, terminate or leave")
	return cmd
}

func (c *cli) interact(f *interactFlags, args []string) (err error) {
	escape, err := expect.ParseControl(f.escape)
	if err != nil {
		return err
	}
	policy, err := parseClosePolicy(f.closePolicy)
	if err != nil {
		return err
	}

	opts := []expect.Option{
		expect.WithLogger(c.logger),
		expect.WithClosePolicy(policy, 0),
		// the program provides its own line discipline, like any terminal
		expect.WithMode(expect.ModeCooked),
	}

	if in, ok := c.in.(*os.File); ok && term.IsTerminal(int(in.Fd())) {
		if cols, rows, err := term.GetSize(int(in.Fd())); err == nil && rows > 0 && cols > 0 {
			opts = append(opts, expect.WithSize(uint16(rows), uint16(cols)))
		}
		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return fmt.Errorf("failed to make terminal raw: %w", err)
		}
		defer func() {
			if rerr := term.Restore(int(in.Fd()), state); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()
	}

	session, err := expect.Spawn(args[0], args[1:], opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, session.Close()) }()

	if err := session.Interact(c.in, c.out, escape); err != nil {
		return err
	}

	if session.IsAlive() {
		c.logger.Info().Int(`pid`, session.Pid()).Stringer(`close`, policy).Log(`escaped`)
		return nil
	}
	status, err := session.Wait()
	if err != nil {
		return err
	}
	if !status.Success() {
		return fmt.Errorf("command %s", status)
	}
	return nil
}
