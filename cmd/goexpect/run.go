package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/go-expect"
	"github.com/joeycumines/go-expect/internal/script"
	"github.com/spf13/cobra"
)

type runFlags struct {
	script      string
	mode        string
	closePolicy string
	env         []string
	timeout     time.Duration
	rows        uint16
	cols        uint16
	async       bool
	transcript  bool
}

func (c *cli) newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run --script FILE [flags] -- COMMAND [ARG...]",
		Short: "Run a YAML script against a command",
		Long: `Spawns COMMAND on a pseudo-terminal, and runs the steps of the script against
it, in order, stopping at the first failure. The text matched by each expect
step is printed to stdout, as a tab separated step number and quoted string.`,
		Args: commandArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), &f, args)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.script, "script", "s", "", "path of the YAML script")
	flags.DurationVar(&f.timeout, "timeout", 30*time.Second, "timeout for expect steps, if the script sets none")
	flags.StringVar(&f.mode, "mode", expect.ModeRaw.String(), "terminal mode: raw or cooked")
	flags.StringVar(&f.closePolicy, "close", expect.CloseKill.String(), "what to do with a running command on exit: kill, terminate or leave")
	flags.StringArrayVar(&f.env, "env", nil, "extra environment variable for the command, as KEY=VALUE, may be repeated")
	flags.Uint16Var(&f.rows, "rows", 24, "terminal rows")
	flags.Uint16Var(&f.cols, "cols", 80, "terminal columns")
	flags.BoolVar(&f.async, "async", false, "drive the session from an event loop")
	flags.BoolVar(&f.transcript, "transcript", false, "write a transcript of all I/O to stderr")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func (c *cli) run(ctx context.Context, f *runFlags, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := script.LoadFile(f.script)
	if err != nil {
		return err
	}
	if s.Timeout == 0 {
		s.Timeout = f.timeout
	}

	opts, err := c.sessionOptions(f)
	if err != nil {
		return err
	}
	session, err := expect.Spawn(args[0], args[1:], opts...)
	if err != nil {
		return err
	}

	var results []script.Result
	if f.async {
		results, err = c.runAsync(ctx, session, s)
	} else {
		results, err = script.Run(ctx, script.Blocking(session), s, c.logger)
		err = errors.Join(err, session.Close())
	}

	for _, r := range results {
		fmt.Fprintf(c.out, "%d\t%q\n", r.Step, r.Match.Matched)
	}
	return err
}

func (c *cli) runAsync(ctx context.Context, session *expect.Session, s *script.Script) ([]script.Result, error) {
	loop, err := eventloop.New(eventloop.WithLogger(c.logger))
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	async := expect.NewAsync(loop, session)
	results, err := script.Run(ctx, script.Async(async), s, c.logger)

	closed := make(chan error, 1)
	if cerr := async.Close(func(err error) { closed <- err }); cerr != nil {
		err = errors.Join(err, cerr, session.Close())
	} else {
		err = errors.Join(err, <-closed)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if serr := loop.Shutdown(shutdownCtx); serr != nil {
		c.logger.Warning().Err(serr).Log(`event loop shutdown failed`)
	}
	cancel()
	if lerr := <-loopDone; lerr != nil && !errors.Is(lerr, context.Canceled) {
		c.logger.Debug().Err(lerr).Log(`event loop stopped`)
	}

	return results, err
}

func (c *cli) sessionOptions(f *runFlags) ([]expect.Option, error) {
	mode, err := parseMode(f.mode)
	if err != nil {
		return nil, err
	}
	policy, err := parseClosePolicy(f.closePolicy)
	if err != nil {
		return nil, err
	}
	opts := []expect.Option{
		expect.WithLogger(c.logger),
		expect.WithSize(f.rows, f.cols),
		expect.WithMode(mode),
		expect.WithClosePolicy(policy, 0),
		expect.WithExpectTimeout(f.timeout),
		expect.WithEnv(f.env...),
	}
	if f.transcript {
		opts = append(opts, expect.WithTranscript(c.errOut))
	}
	return opts, nil
}

func parseMode(s string) (expect.TerminalMode, error) {
	for _, v := range [...]expect.TerminalMode{expect.ModeRaw, expect.ModeCooked} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("invalid terminal mode: %q", s)
}

func parseClosePolicy(s string) (expect.ClosePolicy, error) {
	switch s {
	case "kill":
		return expect.CloseKill, nil
	case "terminate":
		return expect.CloseTerminate, nil
	case "leave":
		return expect.CloseLeaveRunning, nil
	}
	return 0, fmt.Errorf("invalid close policy: %q", s)
}
