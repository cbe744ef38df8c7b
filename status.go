package expect

import (
	"os"
	"strconv"
	"syscall"
)

type (
	// ExitStatus is the last-known state of a child process.
	ExitStatus struct {
		// Code is the exit code, valid for StatusExited.
		Code int
		// Signal is the terminating signal, valid for StatusSignaled.
		Signal syscall.Signal
		Kind   StatusKind
	}

	// StatusKind classifies an [ExitStatus].
	StatusKind uint8
)

const (
	StatusRunning StatusKind = iota
	StatusExited
	StatusSignaled
)

func statusFromProcessState(state *os.ProcessState) ExitStatus {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Kind: StatusSignaled, Signal: ws.Signal(), Code: -1}
	}
	return ExitStatus{Kind: StatusExited, Code: state.ExitCode()}
}

// Running reports whether the process has not yet been reaped.
func (x ExitStatus) Running() bool { return x.Kind == StatusRunning }

// Success reports whether the process exited with code 0.
func (x ExitStatus) Success() bool { return x.Kind == StatusExited && x.Code == 0 }

func (x ExitStatus) String() string {
	switch x.Kind {
	case StatusRunning:
		return `running`
	case StatusExited:
		return `exited(` + strconv.Itoa(x.Code) + `)`
	case StatusSignaled:
		return `signaled(` + x.Signal.String() + `)`
	default:
		return `status(` + strconv.Itoa(int(x.Kind)) + `)`
	}
}

func (x StatusKind) String() string {
	switch x {
	case StatusRunning:
		return `running`
	case StatusExited:
		return `exited`
	case StatusSignaled:
		return `signaled`
	default:
		return `StatusKind(` + strconv.Itoa(int(x)) + `)`
	}
}
