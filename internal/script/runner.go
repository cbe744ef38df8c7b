package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-expect"
	"github.com/joeycumines/logiface"
)

// Driver is the subset of session behavior a script needs, implemented
// for both execution adapters by [Blocking] and [Async].
type Driver interface {
	Send(p []byte) error
	Expect(timeout time.Duration, patterns []expect.Pattern) (*expect.Match, error)
	Wait() (expect.ExitStatus, error)
}

// Result records the outcome of an expect step.
type Result struct {
	Match *expect.Match
	Step  int
}

type (
	blockingDriver struct {
		session *expect.Session
	}

	asyncDriver struct {
		session *expect.AsyncSession
	}

	asyncMatch struct {
		match *expect.Match
		err   error
	}

	asyncStatus struct {
		err    error
		status expect.ExitStatus
	}
)

// Blocking drives a session with its blocking methods.
func Blocking(session *expect.Session) Driver {
	return &blockingDriver{session: session}
}

// Async drives a session through the event loop. The loop must be
// running, and each call blocks the calling goroutine (which must not be
// the loop goroutine) until its callback fires.
func Async(session *expect.AsyncSession) Driver {
	return &asyncDriver{session: session}
}

// Run executes the steps of s in order, stopping at the first failure.
// The context is checked between steps, it doesn't interrupt a step in
// progress.
func Run(ctx context.Context, driver Driver, s *Script, logger *logiface.Logger[logiface.Event]) ([]Result, error) {
	var results []Result
	for i := range s.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		step := &s.Steps[i]
		result, err := runStep(driver, s, step)
		if err != nil {
			logger.Err().Err(err).Int(`step`, i+1).Stringer(`action`, step).Log(`step failed`)
			return results, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
		if result != nil {
			result.Step = i + 1
			results = append(results, *result)
			logger.Info().
				Int(`step`, i+1).
				Int(`index`, result.Match.Index).
				Str(`matched`, string(result.Match.Matched)).
				Str(`before`, string(result.Match.Before)).
				Log(`matched`)
		} else {
			logger.Debug().Int(`step`, i+1).Stringer(`action`, step).Log(`step done`)
		}
	}
	return results, nil
}

func runStep(driver Driver, s *Script, step *Step) (*Result, error) {
	switch {
	case step.Send != nil:
		return nil, driver.Send([]byte(*step.Send))
	case step.SendLine != nil:
		return nil, driver.Send([]byte(*step.SendLine + "\n"))
	case step.Control != "":
		c, err := expect.ParseControl(step.Control)
		if err != nil {
			return nil, err
		}
		return nil, driver.Send([]byte{c.Byte()})
	case step.Wait:
		status, err := driver.Wait()
		if err != nil {
			return nil, err
		}
		if step.ExitCode != nil && (status.Kind != expect.StatusExited || status.Code != *step.ExitCode) {
			return nil, fmt.Errorf("unexpected exit status: %s", status)
		}
		return nil, nil
	case step.isPattern():
		patterns, err := step.patterns()
		if err != nil {
			return nil, err
		}
		timeout := step.Timeout
		if timeout == 0 {
			timeout = s.Timeout
		}
		m, err := driver.Expect(timeout, patterns)
		if err != nil {
			return nil, err
		}
		return &Result{Match: m}, nil
	default:
		return nil, errors.New("no action")
	}
}

func (x *blockingDriver) Send(p []byte) error { return x.session.Send(p) }

func (x *blockingDriver) Expect(timeout time.Duration, patterns []expect.Pattern) (*expect.Match, error) {
	return x.session.ExpectTimeout(timeout, patterns...)
}

func (x *blockingDriver) Wait() (expect.ExitStatus, error) { return x.session.Wait() }

func (x *asyncDriver) Send(p []byte) error {
	ch := make(chan error, 1)
	if err := x.session.Send(p, func(err error) { ch <- err }); err != nil {
		return err
	}
	return <-ch
}

func (x *asyncDriver) Expect(timeout time.Duration, patterns []expect.Pattern) (*expect.Match, error) {
	ch := make(chan asyncMatch, 1)
	if err := x.session.Expect(timeout, patterns, func(m *expect.Match, err error) {
		ch <- asyncMatch{match: m, err: err}
	}); err != nil {
		return nil, err
	}
	r := <-ch
	return r.match, r.err
}

func (x *asyncDriver) Wait() (expect.ExitStatus, error) {
	ch := make(chan asyncStatus, 1)
	if err := x.session.Wait(func(status expect.ExitStatus, err error) {
		ch <- asyncStatus{status: status, err: err}
	}); err != nil {
		return expect.ExitStatus{}, err
	}
	r := <-ch
	return r.status, r.err
}
