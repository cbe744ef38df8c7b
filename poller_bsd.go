//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"golang.org/x/sys/unix"
)

type (
	streamOpsKevent     = unix.Kevent_t
	streamOpsEpollEvent = any
)

// poller waits for readiness of a single target fd, using kqueue, plus a
// wake pipe so another goroutine can interrupt a wait.
type poller struct {
	ops    *streamOps
	fd     int
	target int
	wakeR  int
	wakeW  int
}

func (x *streamOps) initPlatform() {
	x.kqueue = unix.Kqueue
	x.kevent = unix.Kevent
}

func newPoller(ops *streamOps, target int) (*poller, error) {
	kq, err := ops.kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	x := &poller{ops: ops, fd: kq, target: target, wakeR: -1, wakeW: -1}

	var fds [2]int
	if err := ops.pipe(fds[:]); err != nil {
		_ = x.close()
		return nil, err
	}
	x.wakeR, x.wakeW = fds[0], fds[1]
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := ops.setNonblock(fd, true); err != nil {
			_ = x.close()
			return nil, err
		}
	}

	var change [1]unix.Kevent_t
	unix.SetKevent(&change[0], x.wakeR, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := ops.kevent(x.fd, change[:], nil, nil); err != nil {
		_ = x.close()
		return nil, err
	}
	return x, nil
}

// wait blocks until the target is ready for events, the poller is woken,
// or timeoutMs elapses (-1 waits indefinitely). Spurious returns are
// allowed, callers retry their operation.
func (x *poller) wait(events pollEvents, timeoutMs int) error {
	changes := make([]unix.Kevent_t, 0, 2)
	if events&pollRead != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, x.target, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, k)
	}
	if events&pollWrite != 0 {
		var k unix.Kevent_t
		unix.SetKevent(&k, x.target, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, k)
	}
	var timeout *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		timeout = &ts
	}
	var ready [3]unix.Kevent_t
	n, err := x.ops.kevent(x.fd, changes, ready[:], timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		if int(ready[i].Ident) == x.wakeR {
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
