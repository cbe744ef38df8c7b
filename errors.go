package expect

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed [Session].
	ErrClosed = errors.New(`expect: session closed`)

	// ErrBusy is returned when an expect call overlaps another on the same
	// session.
	ErrBusy = errors.New(`expect: another expect call is in progress`)

	// ErrNoPatterns is returned when expect is called without patterns.
	ErrNoPatterns = errors.New(`expect: no patterns`)

	// ErrTimeout matches any [*TimeoutError] via [errors.Is].
	ErrTimeout = errors.New(`expect: timed out`)

	// ErrEOF matches any [*EOFError] via [errors.Is].
	ErrEOF = errors.New(`expect: output ended before a pattern matched`)

	// ErrBufferFull matches any [*BufferFullError] via [errors.Is].
	ErrBufferFull = errors.New(`expect: pending output reached the buffer cap`)

	// errWouldBlock is the transient "no data yet" condition, it never
	// leaves the package.
	errWouldBlock = errors.New(`expect: would block`)
)

type (
	// SpawnError indicates the child could not be started.
	SpawnError struct {
		Err  error
		Op   string
		Path string
	}

	// IOError wraps a read or write failure, other than would-block or EOF.
	IOError struct {
		Err error
		Op  string
	}

	// TimeoutError indicates the deadline passed before any pattern
	// matched. Pending is a copy of the unconsumed output, which is left in
	// place.
	TimeoutError struct {
		Pending []byte
		Elapsed time.Duration
	}

	// EOFError indicates the output ended before any pattern matched.
	// Pending is a copy of the unconsumed output, which also remains
	// buffered in the session.
	EOFError struct {
		Pending []byte
	}

	// BufferFullError indicates the pending output reached the configured
	// cap, without any pattern matching.
	BufferFullError struct {
		Pending []byte
		Max     int
	}

	// WaitError indicates a failure reaping the child.
	WaitError struct {
		Err error
	}
)

func (x *SpawnError) Error() string {
	return `expect: spawn ` + strconv.Quote(x.Path) + `: ` + x.Op + `: ` + errString(x.Err)
}

func (x *SpawnError) Unwrap() error { return x.Err }

func (x *IOError) Error() string { return `expect: ` + x.Op + `: ` + errString(x.Err) }

func (x *IOError) Unwrap() error { return x.Err }

func (x *TimeoutError) Error() string {
	return fmt.Sprintf(`expect: timed out after %s with %d bytes pending`, x.Elapsed, len(x.Pending))
}

func (x *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (x *EOFError) Error() string {
	return fmt.Sprintf(`expect: output ended before a pattern matched, %d bytes pending`, len(x.Pending))
}

func (x *EOFError) Is(target error) bool { return target == ErrEOF }

func (x *BufferFullError) Error() string {
	return fmt.Sprintf(`expect: pending output reached the %d byte cap without a match`, x.Max)
}

func (x *BufferFullError) Is(target error) bool { return target == ErrBufferFull }

func (x *WaitError) Error() string { return `expect: wait: ` + errString(x.Err) }

func (x *WaitError) Unwrap() error { return x.Err }

func errString(err error) string {
	if err == nil {
		return `<nil>`
	}
	return err.Error()
}
