// Package expect automates interactive programs, by spawning them attached
// to a pseudo-terminal, then sending input and waiting for output that
// matches one of a set of patterns.
//
//	s, err := expect.Spawn("ssh", []string{"host"}, expect.WithExpectTimeout(10*time.Second))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if _, err := s.Expect(expect.Literal("password: ")); err != nil {
//		return err
//	}
//	if err := s.SendLine(password); err != nil {
//		return err
//	}
//	m, err := s.Expect(expect.MustRegex(`\$ $`), expect.Literal("denied"))
//
// # Patterns
//
// A [Pattern] is one of [Literal], [Regex], [ByteCount] or [EOF]. Output that
// has been read but not yet consumed accumulates in a buffer, and each call
// to expect evaluates its patterns against the whole of it, in the order
// given. The first pattern (by index, not by position in the output) that
// matches wins, and everything up to and including its match is consumed.
// How the output happened to be split across reads never affects the
// result.
//
// Failed calls consume nothing. A [*TimeoutError], [*EOFError] or
// [*BufferFullError] leaves the pending output in place, for the next call
// (or [Session.Pending]) to inspect. The sentinels [ErrTimeout], [ErrEOF] and
// [ErrBufferFull] match these via [errors.Is].
//
// # Execution
//
// [Session] provides blocking methods, and [AsyncSession] drives the same
// state machine from a [github.com/joeycumines/go-eventloop] loop, resuming
// on fd readiness and timers rather than blocking. Both produce identical
// results for identical output.
//
// # Platform Support
//
// Sessions are implemented for Linux (epoll) and the BSDs, including macOS
// (kqueue). Patterns, [Buffer] and [Evaluate] are portable.
package expect
