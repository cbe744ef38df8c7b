//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type (
	// streamOps collects the system calls used by fdStream and poller, so
	// tests can inject failures per instance.
	streamOps struct {
		setNonblock func(int, bool) error
		read        func(int, []byte) (int, error)
		write       func(int, []byte) (int, error)
		pipe        func([]int) error
		closeFD     func(int) error

		//lint:ignore U1000 Unused depending on env.
		pipe2 func([]int, int) error
		//lint:ignore U1000 Unused depending on env.
		kqueue func() (int, error)
		//lint:ignore U1000 Unused depending on env.
		kevent func(int, []streamOpsKevent, []streamOpsKevent, *unix.Timespec) (int, error)
		//lint:ignore U1000 Unused depending on env.
		epollCreate1 func(int) (int, error)
		//lint:ignore U1000 Unused depending on env.
		epollCtl func(int, int, int, *streamOpsEpollEvent) error
		//lint:ignore U1000 Unused depending on env.
		epollWait func(int, []streamOpsEpollEvent, int) (int, error)
	}

	// fdStream drives a file descriptor (usually a PTY master) in
	// non-blocking mode. Reads and writes are single attempts, reporting
	// errWouldBlock rather than blocking, and wait blocks until readiness,
	// a deadline, or close.
	fdStream struct {
		file      *os.File
		ops       *streamOps
		poll      *poller
		closeErr  error
		mu        sync.RWMutex
		closeOnce sync.Once
		fd        int
		closed    atomic.Bool
	}

	pollEvents uint8
)

const (
	pollRead pollEvents = 1 << iota
	pollWrite
)

func newStreamOps() *streamOps {
	x := streamOps{
		setNonblock: syscall.SetNonblock,
		read:        unix.Read,
		write:       unix.Write,
		pipe:        unix.Pipe,
		closeFD:     unix.Close,
	}
	x.initPlatform()
	return &x
}

// openStream takes ownership of file, which is closed along with the
// stream.
func openStream(file *os.File, ops *streamOps) (*fdStream, error) {
	if file == nil {
		return nil, errors.New(`expect: nil file`)
	}
	if ops == nil {
		ops = newStreamOps()
	}
	// N.B. Fd puts the file into blocking mode, as far as the runtime is
	// concerned, so it must be called before setting non-blocking
	fd := int(file.Fd())
	if err := ops.setNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("failed to set non-blocking mode: %w", err)
	}
	p, err := newPoller(ops, fd)
	if err != nil {
		return nil, fmt.Errorf("failed to init poller: %w", err)
	}
	return &fdStream{file: file, ops: ops, poll: p, fd: fd}, nil
}

// read is a single non-blocking read attempt.
func (x *fdStream) read(p []byte) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := x.ops.read(x.fd, p)
		switch {
		case err == nil && n > 0:
			return n, nil
		case err == nil:
			return 0, io.EOF
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, errWouldBlock
		case err == unix.EIO:
			// the PTY master reports EIO once every slave fd is closed
			return max(n, 0), io.EOF
		default:
			return max(n, 0), err
		}
	}
}

// write is a single non-blocking write attempt, possibly partial.
func (x *fdStream) write(p []byte) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := x.ops.write(x.fd, p)
		switch {
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return max(n, 0), errWouldBlock
		default:
			return max(n, 0), err
		}
	}
}

// writeAll loops until p is fully written, blocking on writability.
func (x *fdStream) writeAll(p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, err := x.write(p[total:])
		total += n
		if err == errWouldBlock {
			if err := x.wait(pollWrite, time.Time{}); err != nil {
				return total, err
			}
			continue
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// wait blocks until the fd may be ready for events, the deadline passes,
// or the stream is closed (or woken). A zero deadline means no deadline.
// Returning nil doesn't guarantee readiness.
func (x *fdStream) wait(events pollEvents, deadline time.Time) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed.Load() {
		return ErrClosed
	}
	timeoutMs := -1
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return nil
		}
		// round up, so we don't spin on sub-millisecond remainders
		timeoutMs = int(min((d+time.Millisecond-1)/time.Millisecond, math.MaxInt32))
	}
	if err := x.poll.wait(events, timeoutMs); err != nil {
		return err
	}
	if x.closed.Load() {
		return ErrClosed
	}
	return nil
}

// wake interrupts a concurrent wait, without closing the stream.
func (x *fdStream) wake() {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.closed.Load() {
		x.poll.wake()
	}
}

// shutdown marks the stream closed, interrupting any wait, but leaves the
// fd open until close.
func (x *fdStream) shutdown() {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.closed.Swap(true) && x.fd >= 0 {
		x.poll.wake()
	}
}

// close is idempotent, and safe to call concurrently with a blocked wait.
func (x *fdStream) close() error {
	x.closeOnce.Do(func() {
		x.shutdown()
		// the wake pipe is only closed under the write lock, which waits
		// for any in-flight wait to return
		x.mu.Lock()
		defer x.mu.Unlock()
		x.closeErr = errors.Join(x.poll.close(), x.file.Close())
		x.fd = -1
	})
	return x.closeErr
}
