//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

const reapOnCloseTimeout = time.Second

var errReapTimeout = errors.New(`expect: timeout waiting for child to be reaped`)

// process reaps a started command in the background, caching the result.
type process struct {
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	status ExitStatus
}

// Spawn starts name with args, attached to a new PTY. The executable is
// resolved the same way as [exec.Command].
func Spawn(name string, args []string, opts ...Option) (*Session, error) {
	return SpawnCommand(exec.Command(name, args...), opts...)
}

// SpawnCommand starts an unstarted cmd attached to a new PTY. The PTY slave
// replaces any configured Stdin, Stdout and Stderr, and becomes the
// controlling terminal of a new session.
func SpawnCommand(cmd *exec.Cmd, opts ...Option) (*Session, error) {
	if cmd == nil {
		return nil, errors.New(`expect: nil command`)
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if cmd.Err != nil {
		return nil, &SpawnError{Op: `lookpath`, Path: cmd.Path, Err: cmd.Err}
	}
	if cmd.Process != nil {
		return nil, &SpawnError{Op: `start`, Path: cmd.Path, Err: errors.New(`already started`)}
	}

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env,
		"TERM=xterm-256color",
		"COLUMNS="+fmt.Sprint(cfg.cols),
		"LINES="+fmt.Sprint(cfg.rows),
	)
	cmd.Env = append(cmd.Env, cfg.env...)
	if cfg.dir != "" {
		cmd.Dir = cfg.dir
	}

	ptm, tty, err := pty.Open()
	if err != nil {
		return nil, &SpawnError{Op: `open`, Path: cmd.Path, Err: err}
	}
	fail := func(op string, err error) (*Session, error) {
		_ = tty.Close()
		_ = ptm.Close()
		return nil, &SpawnError{Op: op, Path: cmd.Path, Err: err}
	}

	if err := pty.Setsize(tty, &pty.Winsize{Rows: cfg.rows, Cols: cfg.cols}); err != nil {
		return fail(`setsize`, err)
	}

	// the attributes as allocated, restored by SetMode(ModeCooked)
	cooked, err := termios.Tcgetattr(tty.Fd())
	if err != nil {
		return fail(`termios`, err)
	}
	if cfg.mode == ModeRaw {
		raw := *cooked
		makeRaw(&raw)
		if err := termios.Tcsetattr(tty.Fd(), termios.TCSANOW, &raw); err != nil {
			return fail(`termios`, err)
		}
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 0

	if err := cmd.Start(); err != nil {
		return fail(`start`, err)
	}
	// the child holds its own copy, ours would prevent EOF
	_ = tty.Close()

	proc := startProcess(cmd)

	stream, err := openStream(ptm, nil)
	if err != nil {
		_ = ptm.Close()
		_ = proc.stop(CloseKill, 0)
		return nil, &SpawnError{Op: `open`, Path: cmd.Path, Err: err}
	}

	s := newSession(cfg, stream, proc, cooked)

	s.logger.Debug().
		Int(`pid`, cmd.Process.Pid).
		Str(`path`, cmd.Path).
		Interface(`args`, cmd.Args).
		Stringer(`mode`, cfg.mode).
		Log(`spawned`)

	return s, nil
}

func startProcess(cmd *exec.Cmd) *process {
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		err := cmd.Wait()
		if state := cmd.ProcessState; state != nil {
			p.status = statusFromProcessState(state)
			return
		}
		if err == nil {
			err = errors.New(`no process state`)
		}
		p.err = &WaitError{Err: err}
	}()
	return p
}

func (x *process) pid() int { return x.cmd.Process.Pid }

func (x *process) current() ExitStatus {
	select {
	case <-x.done:
		return x.status
	default:
		return ExitStatus{Kind: StatusRunning}
	}
}

func (x *process) wait() (ExitStatus, error) {
	<-x.done
	return x.status, x.err
}

func (x *process) signal(sig os.Signal) error {
	return x.cmd.Process.Signal(sig)
}

// stop applies policy to the child, if it is still running.
func (x *process) stop(policy ClosePolicy, grace time.Duration) error {
	select {
	case <-x.done:
		return nil
	default:
	}

	switch policy {
	case CloseLeaveRunning:
		return nil
	case CloseTerminate:
		if err := x.cmd.Process.Signal(syscall.SIGTERM); err == nil {
			timer := time.NewTimer(grace)
			select {
			case <-x.done:
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}

	if err := x.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	timer := time.NewTimer(reapOnCloseTimeout)
	defer timer.Stop()
	select {
	case <-x.done:
		return nil
	case <-timer.C:
		return errReapTimeout
	}
}

// control runs fn with the raw fd, unless the stream is closed.
func (x *fdStream) control(fn func(fd int) error) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed.Load() {
		return ErrClosed
	}
	return fn(x.fd)
}

func getAttr(fd int) (*unix.Termios, error) {
	return termios.Tcgetattr(uintptr(fd))
}

func setAttr(fd int, attr *unix.Termios) error {
	return termios.Tcsetattr(uintptr(fd), termios.TCSANOW, attr)
}

func makeRaw(attr *unix.Termios) {
	termios.Cfmakeraw(attr)
}
