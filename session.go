//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// Session is a child process attached to a PTY, driven by blocking calls.
// See [NewAsync] for the cooperative equivalent.
//
// A Session is meant to be owned by a single goroutine. Only one expect
// (or read) may be in flight at a time, overlapping calls fail with
// [ErrBusy]. The exception is [Session.Close], which may be called from
// any goroutine, and interrupts a blocked call.
type Session struct {
	engine     engine
	logger     *logiface.Logger[logiface.Event]
	stream     *fdStream
	proc       *process
	cooked     *unix.Termios
	transcript *transcript
	closeErr   error
	cfg        *sessionConfig
	timeout    time.Duration
	closeOnce  sync.Once
	mu         sync.Mutex
	busy       atomic.Bool
	closed     atomic.Bool
	mode       TerminalMode
}

func newSession(cfg *sessionConfig, stream *fdStream, proc *process, cooked *unix.Termios) *Session {
	return &Session{
		engine: engine{
			maxSize:  cfg.maxBuffer,
			readSize: cfg.readSize,
		},
		logger:     cfg.logger,
		stream:     stream,
		proc:       proc,
		cooked:     cooked,
		transcript: newTranscript(cfg.transcript),
		cfg:        cfg,
		timeout:    cfg.expectTimeout,
		mode:       cfg.mode,
	}
}

// Pid returns the process id of the child, or -1 if there is none.
func (s *Session) Pid() int {
	if s.proc == nil {
		return -1
	}
	return s.proc.pid()
}

// Send writes p to the PTY, looping until it has been fully written.
func (s *Session) Send(p []byte) error {
	n, err := s.stream.writeAll(p)
	s.recordWrite(p[:n])
	if err != nil {
		return &IOError{Op: `write`, Err: err}
	}
	return nil
}

// SendString is like [Session.Send] but accepts a string.
func (s *Session) SendString(str string) error { return s.Send([]byte(str)) }

// SendLine sends str followed by a line feed.
func (s *Session) SendLine(str string) error { return s.Send([]byte(str + "\n")) }

// SendControl sends the byte of a control code, e.g. [EndOfText] for an
// interrupt (ctrl+c), when the terminal is in cooked mode.
func (s *Session) SendControl(c ControlCode) error { return s.Send([]byte{byte(c)}) }

// Expect waits for the first of patterns to match, bounded by the
// session's expect timeout (see [WithExpectTimeout]).
//
// Patterns are evaluated in the order given, and the first (lowest index)
// pattern that matches wins, even if a later pattern would match earlier
// in the output. On a match, everything up to and including the match is
// consumed. On failure nothing is consumed, and the failure is one of
// [*TimeoutError], [*EOFError], [*BufferFullError] or [*IOError].
func (s *Session) Expect(patterns ...Pattern) (*Match, error) {
	return s.ExpectTimeout(s.ExpectTimeoutDuration(), patterns...)
}

// ExpectTimeout is like [Session.Expect] with an explicit timeout, where
// a value <= 0 means no timeout.
func (s *Session) ExpectTimeout(timeout time.Duration, patterns ...Pattern) (*Match, error) {
	return s.ExpectDeadline(deadlineOf(timeout), patterns...)
}

// ExpectDeadline is like [Session.Expect] with an absolute deadline, where
// the zero value means no deadline.
func (s *Session) ExpectDeadline(deadline time.Time, patterns ...Pattern) (*Match, error) {
	e, err := newExpectation(deadline, patterns)
	if err != nil {
		return nil, err
	}
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	ph, m, err := s.engine.advance(e, s.readChunk)
	for ph == phaseReading {
		if werr := s.stream.wait(pollRead, e.deadline); werr != nil {
			ph, err = phaseIOFailed, &IOError{Op: `poll`, Err: werr}
			break
		}
		ph, m, err = s.engine.advance(e, s.readChunk)
	}
	s.logExpect(e, ph, m, err)
	return m, err
}

// Check reads whatever output is immediately available, then evaluates
// patterns once, without blocking. It returns nil, nil if nothing matched
// and more output may follow. Matching and failure semantics are otherwise
// the same as [Session.Expect].
func (s *Session) Check(patterns ...Pattern) (*Match, error) {
	if _, err := newExpectation(time.Time{}, patterns); err != nil {
		return nil, err
	}
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	return s.engine.check(patterns, s.readChunk)
}

// Read implements [io.Reader], reading raw output. Pending output that was
// not consumed by expect is returned first. It returns [io.EOF] once the
// output has ended.
func (s *Session) Read(p []byte) (int, error) {
	if !s.acquire() {
		return 0, ErrBusy
	}
	defer s.release()
	for {
		n, err := s.engine.read(p, s.readChunk)
		if err != errWouldBlock {
			return n, err
		}
		if err := s.stream.wait(pollRead, time.Time{}); err != nil {
			return 0, &IOError{Op: `poll`, Err: err}
		}
	}
}

// Write implements [io.Writer], see [Session.Send].
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.stream.writeAll(p)
	s.recordWrite(p[:n])
	if err != nil {
		return n, &IOError{Op: `write`, Err: err}
	}
	return n, nil
}

// Pending returns a copy of the output that has been read, but not yet
// consumed. It returns nil while another call (e.g. a blocked
// [Session.Expect], or an [AsyncSession] operation) holds the session, as
// the buffer is owned by that call until it completes. Callers that need
// to tell this apart from "nothing pending" should inspect the error of
// the failed call instead, see [TimeoutError.Pending].
func (s *Session) Pending() []byte {
	if !s.acquire() {
		return nil
	}
	defer s.release()
	return bytes.Clone(s.engine.buf.Pending())
}

// SetExpectTimeout changes the timeout used by [Session.Expect].
func (s *Session) SetExpectTimeout(timeout time.Duration) {
	s.mu.Lock()
	s.timeout = timeout
	s.mu.Unlock()
}

// ExpectTimeoutDuration returns the timeout used by [Session.Expect].
func (s *Session) ExpectTimeoutDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// Wait blocks until the child exits, and returns its status. Repeated
// calls return the same result.
func (s *Session) Wait() (ExitStatus, error) {
	if s.proc == nil {
		return ExitStatus{}, &WaitError{Err: errors.New(`no process`)}
	}
	return s.proc.wait()
}

// Status returns the last-known status of the child, without blocking.
func (s *Session) Status() ExitStatus {
	if s.proc == nil {
		return ExitStatus{}
	}
	return s.proc.current()
}

// IsAlive reports whether the child has not yet exited.
func (s *Session) IsAlive() bool { return s.proc != nil && s.Status().Running() }

// Signal sends sig to the child.
func (s *Session) Signal(sig os.Signal) error {
	if s.proc == nil {
		return errors.New(`expect: no process`)
	}
	return s.proc.signal(sig)
}

// Resize changes the PTY dimensions, which delivers SIGWINCH to the
// child's foreground process group.
func (s *Session) Resize(rows, cols uint16) error {
	return s.stream.control(func(fd int) error {
		return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &unix.Winsize{Row: rows, Col: cols})
	})
}

// Size returns the PTY dimensions.
func (s *Session) Size() (rows, cols uint16, err error) {
	err = s.stream.control(func(fd int) error {
		ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
		if err != nil {
			return err
		}
		rows, cols = ws.Row, ws.Col
		return nil
	})
	return
}

// Mode returns the current terminal mode.
func (s *Session) Mode() TerminalMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the terminal between raw and cooked mode. Cooked mode
// restores the attributes the PTY was allocated with.
func (s *Session) SetMode(mode TerminalMode) error {
	if s.cooked == nil {
		return errors.New(`expect: not a terminal`)
	}
	attr := *s.cooked
	switch mode {
	case ModeRaw:
		makeRaw(&attr)
	case ModeCooked:
	default:
		return errors.New(`expect: invalid terminal mode`)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.control(func(fd int) error { return setAttr(fd, &attr) }); err != nil {
		return err
	}
	s.mode = mode
	return nil
}

// Echo reports whether the terminal echoes input.
func (s *Session) Echo() (bool, error) {
	var on bool
	err := s.stream.control(func(fd int) error {
		attr, err := getAttr(fd)
		if err != nil {
			return err
		}
		on = attr.Lflag&unix.ECHO != 0
		return nil
	})
	return on, err
}

// SetEcho enables or disables input echo.
func (s *Session) SetEcho(on bool) error {
	return s.stream.control(func(fd int) error {
		attr, err := getAttr(fd)
		if err != nil {
			return err
		}
		if on {
			attr.Lflag |= unix.ECHO
		} else {
			attr.Lflag &^= unix.ECHO
		}
		return setAttr(fd, attr)
	})
}

// Close releases the PTY, and handles the child according to the
// configured [ClosePolicy]. Pending output is discarded. It is safe to
// call more than once, and concurrently with a blocked call, which fails
// with an [*IOError] wrapping [ErrClosed].
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.New(`panic during close`)
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Session) close() error {
	s.closed.Store(true)

	// the child is stopped before the PTY hangs up, so it sees the signal
	// the policy asks for rather than SIGHUP
	s.stream.shutdown()
	var errs []error
	if s.proc != nil {
		if err := s.proc.stop(s.cfg.closePolicy, s.cfg.closeGrace); err != nil {
			s.logger.Warning().Err(err).Int(`pid`, s.proc.pid()).Log(`failed to stop child`)
			errs = append(errs, err)
		}
	}
	if err := s.stream.close(); err != nil {
		errs = append(errs, err)
	}
	if s.acquire() {
		s.release()
	}

	s.logger.Debug().
		Stringer(`policy`, s.cfg.closePolicy).
		Stringer(`status`, s.Status()).
		Log(`closed`)

	return errors.Join(errs...)
}

func (s *Session) acquire() bool { return s.busy.CompareAndSwap(false, true) }

// release ends an exclusive section, discarding pending output if the
// session was closed.
func (s *Session) release() {
	if s.closed.Load() {
		s.engine.buf = Buffer{}
	}
	s.busy.Store(false)
}

// readChunk is the readFunc for both adapters.
func (s *Session) readChunk(p []byte) (int, error) {
	n, err := s.stream.read(p)
	if n > 0 {
		s.transcript.record(`read`, p[:n])
		s.logger.Trace().Int(`n`, n).Log(`read`)
	}
	return n, err
}

func (s *Session) recordWrite(p []byte) {
	if len(p) != 0 {
		s.transcript.record(`write`, p)
		s.logger.Trace().Int(`n`, len(p)).Log(`write`)
	}
}

func (s *Session) logExpect(e *expectation, ph phase, m *Match, err error) {
	if ph == phaseFull {
		s.logger.Warning().Int(`max`, s.engine.maxSize).Log(`pending output reached the buffer cap`)
	}
	b := s.logger.Debug()
	if !b.Enabled() {
		return
	}
	b = b.Stringer(`phase`, ph).
		Int(`patterns`, len(e.patterns)).
		Dur(`elapsed`, time.Since(e.started))
	if m != nil {
		b = b.Int(`index`, m.Index).
			Stringer(`pattern`, m.Pattern).
			Int(`consumed`, m.End)
	}
	if err != nil {
		b = b.Err(err)
	}
	b.Log(`expect finished`)
}

func deadlineOf(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
