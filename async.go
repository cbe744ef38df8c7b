//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"bytes"
	"errors"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

type (
	// AsyncSession drives a [Session] from an [eventloop.Loop], without
	// blocking the loop. Reads and writes are attempted without blocking,
	// and are resumed by fd readiness, or by a timer for deadlines.
	//
	// Methods may be called from any goroutine, and every callback runs on
	// the loop goroutine. Matching semantics are identical to the blocking
	// methods of [Session], which must not be used while an asynchronous
	// operation is in flight.
	AsyncSession struct {
		loop    *eventloop.Loop
		session *Session

		// loop goroutine only

		expecting  *asyncExpect
		writes     []*asyncWrite
		fd         int
		interest   pollEvents
		registered bool
	}

	asyncExpect struct {
		e        *expectation
		done     func(*Match, error)
		timer    eventloop.TimerID
		hasTimer bool
	}

	asyncWrite struct {
		done func(error)
		p    []byte
		n    int
	}
)

// NewAsync binds session to loop. The session remains owned by the caller,
// see [AsyncSession.Close].
func NewAsync(loop *eventloop.Loop, session *Session) *AsyncSession {
	if loop == nil || session == nil {
		panic(`expect: nil loop or session`)
	}
	return &AsyncSession{loop: loop, session: session, fd: -1}
}

// Session returns the underlying session.
func (x *AsyncSession) Session() *Session { return x.session }

// Expect is the asynchronous form of [Session.ExpectTimeout]. It returns
// an error without calling done if the call could not be started.
func (x *AsyncSession) Expect(timeout time.Duration, patterns []Pattern, done func(*Match, error)) error {
	return x.ExpectDeadline(deadlineOf(timeout), patterns, done)
}

// ExpectDeadline is the asynchronous form of [Session.ExpectDeadline].
func (x *AsyncSession) ExpectDeadline(deadline time.Time, patterns []Pattern, done func(*Match, error)) error {
	if done == nil {
		return errors.New(`expect: nil callback`)
	}
	e, err := newExpectation(deadline, patterns)
	if err != nil {
		return err
	}
	if !x.session.acquire() {
		return ErrBusy
	}
	op := &asyncExpect{e: e, done: done}
	if err := x.loop.Submit(func() {
		x.expecting = op
		x.stepExpect(op)
	}); err != nil {
		x.session.release()
		return err
	}
	return nil
}

// Send is the asynchronous form of [Session.Send]. Writes complete in the
// order they were submitted. The done callback may be nil.
func (x *AsyncSession) Send(p []byte, done func(error)) error {
	w := &asyncWrite{p: bytes.Clone(p), done: done}
	return x.loop.Submit(func() {
		x.writes = append(x.writes, w)
		if len(x.writes) == 1 {
			x.stepWrite()
		}
	})
}

// SendLine is the asynchronous form of [Session.SendLine].
func (x *AsyncSession) SendLine(str string, done func(error)) error {
	return x.Send([]byte(str+"\n"), done)
}

// SendControl is the asynchronous form of [Session.SendControl].
func (x *AsyncSession) SendControl(c ControlCode, done func(error)) error {
	return x.Send([]byte{byte(c)}, done)
}

// Wait is the asynchronous form of [Session.Wait]. The child is reaped on
// a separate goroutine, and done is submitted to the loop. The callback is
// dropped if the loop has terminated by then.
func (x *AsyncSession) Wait(done func(ExitStatus, error)) error {
	if done == nil {
		return errors.New(`expect: nil callback`)
	}
	go func() {
		status, err := x.session.Wait()
		if serr := x.loop.Submit(func() { done(status, err) }); serr != nil {
			x.session.logger.Warning().Err(serr).Log(`dropped wait callback`)
		}
	}()
	return nil
}

// Close fails any in-flight operations with an [*IOError] wrapping
// [ErrClosed], then closes the session. Stopping the child may take up to
// the configured grace period, so [Session.Close] runs on a separate
// goroutine, and done (which may be nil) is submitted to the loop once it
// returns.
func (x *AsyncSession) Close(done func(error)) error {
	return x.loop.Submit(func() {
		x.unregister()
		x.session.stream.shutdown()
		cause := &IOError{Op: `read`, Err: ErrClosed}
		if op := x.expecting; op != nil {
			x.finishExpect(op, phaseIOFailed, nil, cause)
		}
		writes := x.writes
		x.writes = nil
		for _, w := range writes {
			if w.done != nil {
				w.done(&IOError{Op: `write`, Err: ErrClosed})
			}
		}
		go func() {
			err := x.session.Close()
			if done == nil {
				return
			}
			if serr := x.loop.Submit(func() { done(err) }); serr != nil {
				x.session.logger.Warning().Err(serr).Log(`dropped close callback`)
			}
		}()
	})
}

func (x *AsyncSession) stepExpect(op *asyncExpect) {
	if x.expecting != op {
		return
	}
	ph, m, err := x.session.engine.advance(op.e, x.session.readChunk)
	if ph != phaseReading {
		x.finishExpect(op, ph, m, err)
		return
	}
	if !op.e.deadline.IsZero() && !op.hasTimer {
		id, err := x.loop.ScheduleTimer(time.Until(op.e.deadline), func() {
			op.hasTimer = false
			x.stepExpect(op)
		})
		if err != nil {
			x.finishExpect(op, phaseIOFailed, nil, &IOError{Op: `schedule`, Err: err})
			return
		}
		op.timer, op.hasTimer = id, true
	}
	if err := x.want(pollRead); err != nil {
		x.finishExpect(op, phaseIOFailed, nil, &IOError{Op: `poll`, Err: err})
	}
}

func (x *AsyncSession) finishExpect(op *asyncExpect, ph phase, m *Match, err error) {
	x.expecting = nil
	if op.hasTimer {
		_ = x.loop.CancelTimer(op.timer)
		op.hasTimer = false
	}
	x.drop(pollRead)
	x.session.logExpect(op.e, ph, m, err)
	x.session.release()
	op.done(m, err)
}

func (x *AsyncSession) stepWrite() {
	for len(x.writes) != 0 {
		w := x.writes[0]
		n, err := x.session.stream.write(w.p[w.n:])
		if n > 0 {
			x.session.recordWrite(w.p[w.n : w.n+n])
			w.n += n
		}
		if err == errWouldBlock {
			if err = x.want(pollWrite); err == nil {
				return
			}
		}
		if err == nil && w.n < len(w.p) {
			continue
		}
		x.writes = x.writes[1:]
		if err != nil {
			err = &IOError{Op: `write`, Err: err}
		}
		if w.done != nil {
			w.done(err)
		}
	}
	x.drop(pollWrite)
}

// want adds to the fd interest set, registering with the loop as needed.
func (x *AsyncSession) want(events pollEvents) error {
	next := x.interest | events
	if x.registered && next == x.interest {
		return nil
	}
	if !x.registered {
		fd := -1
		_ = x.session.stream.control(func(v int) error {
			fd = v
			return nil
		})
		if fd < 0 {
			return ErrClosed
		}
		if err := x.loop.RegisterFD(fd, toIOEvents(next), x.onIO); err != nil {
			return err
		}
		x.fd = fd
		x.registered = true
	} else if err := x.loop.ModifyFD(x.fd, toIOEvents(next)); err != nil {
		return err
	}
	x.interest = next
	return nil
}

// drop removes from the fd interest set, unregistering once empty, so a
// level-triggered poller doesn't spin on output nobody is waiting for.
func (x *AsyncSession) drop(events pollEvents) {
	next := x.interest &^ events
	if next == x.interest {
		return
	}
	x.interest = next
	if !x.registered {
		return
	}
	if next == 0 {
		x.unregister()
		return
	}
	_ = x.loop.ModifyFD(x.fd, toIOEvents(next))
}

func (x *AsyncSession) unregister() {
	if x.registered {
		_ = x.loop.UnregisterFD(x.fd)
		x.registered = false
		x.fd = -1
	}
	x.interest = 0
}

func (x *AsyncSession) onIO(events eventloop.IOEvents) {
	const failed = eventloop.EventError | eventloop.EventHangup
	if op := x.expecting; op != nil && events&(eventloop.EventRead|failed) != 0 {
		x.stepExpect(op)
	}
	if len(x.writes) != 0 && events&(eventloop.EventWrite|failed) != 0 {
		x.stepWrite()
	}
}

func toIOEvents(events pollEvents) eventloop.IOEvents {
	var v eventloop.IOEvents
	if events&pollRead != 0 {
		v |= eventloop.EventRead
	}
	if events&pollWrite != 0 {
		v |= eventloop.EventWrite
	}
	return v
}
