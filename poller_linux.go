//go:build linux

package expect

import (
	"golang.org/x/sys/unix"
)

type (
	streamOpsKevent     = any
	streamOpsEpollEvent = unix.EpollEvent
)

// poller waits for readiness of a single target fd, using epoll, plus a
// wake pipe so another goroutine can interrupt a wait.
type poller struct {
	ops    *streamOps
	fd     int
	target int
	wakeR  int
	wakeW  int
	events pollEvents
}

func (x *streamOps) initPlatform() {
	x.epollCreate1 = unix.EpollCreate1
	x.epollCtl = unix.EpollCtl
	x.epollWait = unix.EpollWait
	x.pipe2 = unix.Pipe2
}

func newPoller(ops *streamOps, target int) (*poller, error) {
	epfd, err := ops.epollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	x := &poller{ops: ops, fd: epfd, target: target, wakeR: -1, wakeW: -1}

	var fds [2]int
	if err := ops.pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		_ = x.close()
		return nil, err
	}
	x.wakeR, x.wakeW = fds[0], fds[1]

	if err := ops.epollCtl(x.fd, unix.EPOLL_CTL_ADD, x.wakeR, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(x.wakeR)}); err != nil {
		_ = x.close()
		return nil, err
	}
	if err := ops.epollCtl(x.fd, unix.EPOLL_CTL_ADD, x.target, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(x.target)}); err != nil {
		_ = x.close()
		return nil, err
	}
	x.events = pollRead
	return x, nil
}

// wait blocks until the target is ready for events, the poller is woken,
// or timeoutMs elapses (-1 waits indefinitely). Spurious returns are
// allowed, callers retry their operation.
func (x *poller) wait(events pollEvents, timeoutMs int) error {
	if events != x.events {
		var mask uint32
		if events&pollRead != 0 {
			mask |= unix.EPOLLIN
		}
		if events&pollWrite != 0 {
			mask |= unix.EPOLLOUT
		}
		if err := x.ops.epollCtl(x.fd, unix.EPOLL_CTL_MOD, x.target, &unix.EpollEvent{Events: mask, Fd: int32(x.target)}); err != nil {
			return err
		}
		x.events = events
	}
	var ready [2]unix.EpollEvent
	n, err := x.ops.epollWait(x.fd, ready[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		if int(ready[i].Fd) == x.wakeR {
			x.drain()
		}
	}
	return nil
}

func (x *poller) wake() {
	if x.wakeW >= 0 {
		_, _ = x.ops.write(x.wakeW, []byte{0})
	}
}

func (x *poller) drain() {
	var buf [128]byte
	for {
		if n, err := x.ops.read(x.wakeR, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (x *poller) close() error {
	var firstErr error
	for _, fd := range [...]*int{&x.fd, &x.wakeR, &x.wakeW} {
		if *fd < 0 {
			continue
		}
		if err := x.ops.closeFD(*fd); err != nil && firstErr == nil {
			firstErr = err
		}
		*fd = -1
	}
	return firstErr
}
