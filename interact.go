//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package expect

import (
	"bytes"
	"io"
	"time"
)

// Interact hands the session over to a user: output (starting with any
// pending output) is copied to out, and in is forwarded to the child,
// until escape is read from in, in ends, or the output ends. Input
// following the escape byte, in the same read, is discarded.
//
// Reads from in happen on a separate goroutine, which may remain blocked
// in Read after Interact returns, e.g. when in is [os.Stdin]. The caller
// is responsible for putting the user's terminal into raw mode, if
// desired.
func (s *Session) Interact(in io.Reader, out io.Writer, escape ControlCode) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	s.logger.Debug().Stringer(`escape`, escape).Log(`interact started`)

	type chunk struct {
		err error
		p   []byte
	}
	stop := make(chan struct{})
	defer close(stop)
	// buffered so the reader can wake us after each send, without waiting
	input := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := in.Read(buf)
			if n > 0 || err != nil {
				select {
				case input <- chunk{p: bytes.Clone(buf[:n]), err: err}:
					s.stream.wake()
				case <-stop:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	buf := make([]byte, s.engine.readSize)
	for {
		// forward input first, so typing stays responsive under heavy output
		select {
		case c := <-input:
			if i := bytes.IndexByte(c.p, byte(escape)); i >= 0 {
				s.logger.Debug().Log(`interact escaped`)
				return s.Send(c.p[:i])
			}
			if err := s.Send(c.p); err != nil {
				return err
			}
			switch c.err {
			case nil:
				continue
			case io.EOF:
				return nil
			default:
				return &IOError{Op: `interact`, Err: c.err}
			}
		default:
		}

		n, err := s.engine.read(buf, s.readChunk)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &IOError{Op: `interact`, Err: werr}
			}
		}
		switch err {
		case nil:
		case io.EOF:
			return nil
		case errWouldBlock:
			if err := s.stream.wait(pollRead, time.Time{}); err != nil {
				return &IOError{Op: `poll`, Err: err}
			}
		default:
			return err
		}
	}
}
