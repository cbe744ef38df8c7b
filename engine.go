package expect

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"time"
)

const defaultReadSize = 4096

type (
	// engine owns the pending output of one session, and implements the
	// read-match-consume state machine shared by both execution adapters.
	// It is not safe for concurrent use.
	engine struct {
		buf      Buffer
		maxSize  int
		readSize int
		eof      bool
	}

	// readFunc is a single non-blocking read attempt. It returns
	// errWouldBlock if no data is available, and io.EOF once the stream
	// has ended.
	readFunc func(p []byte) (int, error)

	// expectation is the state of one in-flight expect call.
	expectation struct {
		started  time.Time
		deadline time.Time
		patterns []Pattern
	}

	phase uint8
)

const (
	phaseIdle phase = iota
	phaseReading
	phaseMatching
	phaseMatched
	phaseTimedOut
	phaseEOF
	phaseFull
	phaseIOFailed
)

func newExpectation(deadline time.Time, patterns []Pattern) (*expectation, error) {
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}
	for _, p := range patterns {
		if p == nil {
			return nil, errors.New(`expect: nil pattern`)
		}
	}
	return &expectation{
		started:  time.Now(),
		deadline: deadline,
		patterns: patterns,
	}, nil
}

func (x phase) String() string {
	switch x {
	case phaseIdle:
		return `idle`
	case phaseReading:
		return `reading`
	case phaseMatching:
		return `matching`
	case phaseMatched:
		return `matched`
	case phaseTimedOut:
		return `timed out`
	case phaseEOF:
		return `eof`
	case phaseFull:
		return `full`
	case phaseIOFailed:
		return `io failed`
	default:
		return `phase(` + strconv.Itoa(int(x)) + `)`
	}
}

func (x *engine) full() bool {
	return x.maxSize > 0 && x.buf.Len() >= x.maxSize
}

// advance moves e forward until it reaches a terminal phase, or returns
// phaseReading, indicating the caller must wait for the stream to become
// readable (or the deadline to pass), then call advance again.
//
// Matching always happens before the deadline is checked, so output that
// is already buffered wins over an expired deadline.
func (x *engine) advance(e *expectation, read readFunc) (phase, *Match, error) {
	for {
		if m := x.match(e.patterns); m != nil {
			return phaseMatched, m, nil
		}
		if x.eof {
			return phaseEOF, nil, &EOFError{Pending: bytes.Clone(x.buf.Pending())}
		}
		if x.full() {
			return phaseFull, nil, &BufferFullError{Pending: bytes.Clone(x.buf.Pending()), Max: x.maxSize}
		}
		if !e.deadline.IsZero() && !time.Now().Before(e.deadline) {
			return phaseTimedOut, nil, &TimeoutError{Elapsed: time.Since(e.started), Pending: bytes.Clone(x.buf.Pending())}
		}
		if _, err := x.fill(read); err != nil {
			if err == errWouldBlock {
				return phaseReading, nil, nil
			}
			return phaseIOFailed, nil, err
		}
	}
}

// check is a single non-blocking pass: read whatever is available, then
// evaluate once. It returns nil, nil if nothing matched and the stream may
// still produce more output.
func (x *engine) check(patterns []Pattern, read readFunc) (*Match, error) {
	for !x.eof && !x.full() {
		if _, err := x.fill(read); err != nil {
			if err == errWouldBlock {
				break
			}
			return nil, err
		}
	}
	if m := x.match(patterns); m != nil {
		return m, nil
	}
	if x.eof {
		return nil, &EOFError{Pending: bytes.Clone(x.buf.Pending())}
	}
	if x.full() {
		return nil, &BufferFullError{Pending: bytes.Clone(x.buf.Pending()), Max: x.maxSize}
	}
	return nil, nil
}

// match evaluates patterns in order, and consumes through the end of the
// first (lowest index) match.
func (x *engine) match(patterns []Pattern) *Match {
	w := window{
		data: x.buf.Pending(),
		eof:  x.eof,
		full: x.full(),
	}
	for i, p := range patterns {
		r := p.evaluate(w)
		if r.Verdict != Matched {
			continue
		}
		m := newMatch(i, p, w.data, r)
		x.buf.ConsumeThrough(r.End)
		return m
	}
	return nil
}

// fill performs one read attempt into the buffer's spare capacity. A nil
// error means at least one byte was appended, io.EOF is absorbed into the
// sticky eof flag, and any other failure is returned as an [*IOError]
// (except errWouldBlock, which is returned as is).
func (x *engine) fill(read readFunc) (int, error) {
	size := x.readSize
	if size <= 0 {
		size = defaultReadSize
	}
	if x.maxSize > 0 {
		size = min(size, x.maxSize-x.buf.Len())
	}
	if size <= 0 {
		return 0, nil
	}
	n, err := read(x.buf.reserve(size))
	if n > 0 {
		x.buf.commit(n)
	}
	switch {
	case err == nil && n == 0, err == io.EOF:
		x.eof = true
		return n, nil
	case err == nil:
		return n, nil
	case err == errWouldBlock:
		return n, err
	default:
		return n, &IOError{Op: `read`, Err: err}
	}
}

// read copies pending bytes into p, before touching the stream. It returns
// io.EOF once everything has been drained and the stream has ended.
func (x *engine) read(p []byte, read readFunc) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if x.buf.Len() != 0 {
		n := copy(p, x.buf.Pending())
		x.buf.ConsumeThrough(n)
		return n, nil
	}
	if x.eof {
		return 0, io.EOF
	}
	n, err := read(p)
	switch {
	case err == nil && n == 0, err == io.EOF:
		x.eof = true
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	case err == nil:
		return n, nil
	case err == errWouldBlock:
		return 0, err
	default:
		return n, &IOError{Op: `read`, Err: err}
	}
}
