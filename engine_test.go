package expect

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream feeds an engine from queued chunks. Reads report would-block
// while the queue is empty, unless eof (or err) is set.
type fakeStream struct {
	err    error
	chunks [][]byte
	// feed is delivered one chunk at a time, see runExpect
	feed  []string
	eof   bool
	reads int
}

func (x *fakeStream) read(p []byte) (int, error) {
	x.reads++
	if len(x.chunks) == 0 {
		switch {
		case x.err != nil:
			return 0, x.err
		case x.eof:
			return 0, io.EOF
		default:
			return 0, errWouldBlock
		}
	}
	n := copy(p, x.chunks[0])
	if n == len(x.chunks[0]) {
		x.chunks = x.chunks[1:]
	} else {
		x.chunks[0] = x.chunks[0][n:]
	}
	return n, nil
}

// runExpect drives advance, delivering one more chunk from s.feed each
// time the engine would block, then marking EOF once the feed is exhausted.
func runExpect(t *testing.T, e *engine, s *fakeStream, deadline time.Time, patterns ...Pattern) (phase, *Match, error) {
	t.Helper()
	ex, err := newExpectation(deadline, patterns)
	require.NoError(t, err)
	for {
		ph, m, err := e.advance(ex, s.read)
		if ph != phaseReading {
			return ph, m, err
		}
		if len(s.feed) == 0 {
			s.eof = true
			continue
		}
		s.chunks = append(s.chunks, []byte(s.feed[0]))
		s.feed = s.feed[1:]
	}
}

type outcome struct {
	Groups  []string
	Before  string
	Matched string
	Err     string
	Index   int
}

func outcomeOf(m *Match, err error) outcome {
	if err != nil {
		switch {
		case errors.Is(err, ErrTimeout):
			return outcome{Err: `timeout`}
		case errors.Is(err, ErrEOF):
			return outcome{Err: `eof`}
		case errors.Is(err, ErrBufferFull):
			return outcome{Err: `full`}
		default:
			return outcome{Err: err.Error()}
		}
	}
	o := outcome{Index: m.Index, Before: string(m.Before), Matched: string(m.Matched)}
	for _, g := range m.Groups {
		o.Groups = append(o.Groups, string(g))
	}
	return o
}

func splitBytes(s string) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i : i+1]
	}
	return out
}

func TestEngine_chunkingIndependence(t *testing.T) {
	const output = "login: admin\r\nPassword: \r\nWelcome\r\n$ "
	steps := [][]Pattern{
		{Literal(`login: `)},
		{MustRegex(`Password: `), Literal(`denied`)},
		{Literal(`denied`), MustRegex(`(\w+)\r\n`)},
		{MustRegex(`\$ $`)},
		{EOF{}},
	}
	run := func(feed []string) []outcome {
		e := engine{maxSize: DefaultMaxBuffer, readSize: 7}
		s := &fakeStream{feed: feed}
		var out []outcome
		for _, patterns := range steps {
			_, m, err := runExpect(t, &e, s, time.Time{}, patterns...)
			out = append(out, outcomeOf(m, err))
		}
		return out
	}
	want := run([]string{output})
	if diff := cmp.Diff(want, run(splitBytes(output))); diff != `` {
		t.Errorf("single byte chunks diverged (-whole +split):\n%s", diff)
	}
	if diff := cmp.Diff(want, run([]string{output[:9], output[9:20], output[20:]})); diff != `` {
		t.Errorf("chunks diverged (-whole +split):\n%s", diff)
	}
	assert.Equal(t, []outcome{
		{Matched: `login: `},
		{Before: "admin\r\n", Matched: `Password: `, Groups: []string{`Password: `}},
		{Index: 1, Before: "\r\n", Matched: "Welcome\r\n", Groups: []string{"Welcome\r\n", `Welcome`}},
		{Matched: `$ `, Groups: []string{`$ `}},
		{Matched: ``},
	}, want)
}

func TestEngine_firstPatternWins(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`ab`)}}
	ph, m, err := runExpect(t, &e, s, time.Time{}, Literal(`b`), Literal(`a`))
	require.NoError(t, err)
	assert.Equal(t, phaseMatched, ph)
	assert.Equal(t, outcome{Index: 0, Before: `a`, Matched: `b`}, outcomeOf(m, err))
	assert.Equal(t, 0, e.buf.Len())
}

func TestEngine_consumesThroughMatch(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`one two three`)}}
	_, m, err := runExpect(t, &e, s, time.Time{}, Literal(`two`))
	require.NoError(t, err)
	assert.Equal(t, `one `, string(m.Before))
	assert.Equal(t, 4, m.Start)
	assert.Equal(t, 7, m.End)
	assert.Equal(t, ` three`, string(e.buf.Pending()))
}

func TestEngine_byteCountAcrossReads(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{feed: []string{`ab`, `cde`}}
	_, m, err := runExpect(t, &e, s, time.Time{}, ByteCount(3))
	require.NoError(t, err)
	assert.Equal(t, `abc`, string(m.Matched))
	assert.Equal(t, `de`, string(e.buf.Pending()))
}

func TestEngine_byteCountWaitsForSecondRead(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`ab`)}}
	ex, err := newExpectation(time.Time{}, []Pattern{ByteCount(5)})
	require.NoError(t, err)

	ph, m, err := e.advance(ex, s.read)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, phaseReading, ph)
	assert.Equal(t, `ab`, string(e.buf.Pending()))

	s.chunks = append(s.chunks, []byte(`cde`))
	ph, m, err = e.advance(ex, s.read)
	require.NoError(t, err)
	assert.Equal(t, phaseMatched, ph)
	assert.Equal(t, outcome{Matched: `abcde`}, outcomeOf(m, err))
	assert.Zero(t, e.buf.Len())
}

func TestEngine_bufferedOutputBeatsDeadline(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	e.buf.Append([]byte(`abc`))
	s := new(fakeStream)
	past := time.Now().Add(-time.Second)

	ph, m, err := runExpect(t, &e, s, past, Literal(`b`))
	require.NoError(t, err)
	assert.Equal(t, phaseMatched, ph)
	assert.Equal(t, `b`, m.String())
	assert.Equal(t, `c`, string(e.buf.Pending()))
}

func TestEngine_timeoutPreservesBuffer(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`partial`)}}
	ex, err := newExpectation(time.Now().Add(20*time.Millisecond), []Pattern{Literal(`zzz`)})
	require.NoError(t, err)

	ph, m, err := e.advance(ex, s.read)
	require.NoError(t, err)
	require.Nil(t, m)
	require.Equal(t, phaseReading, ph)

	time.Sleep(30 * time.Millisecond)
	ph, m, err = e.advance(ex, s.read)
	assert.Equal(t, phaseTimedOut, ph)
	assert.Nil(t, m)
	var te *TimeoutError
	if assert.ErrorAs(t, err, &te) {
		assert.Equal(t, `partial`, string(te.Pending))
		assert.GreaterOrEqual(t, te.Elapsed, 20*time.Millisecond)
	}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, `partial`, string(e.buf.Pending()))

	// the next expect sees the same bytes
	_, m, err = runExpect(t, &e, s, time.Time{}, Literal(`tia`))
	require.NoError(t, err)
	assert.Equal(t, `par`, string(m.Before))
}

func TestEngine_eof(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`tail`)}, eof: true}

	ph, m, err := runExpect(t, &e, s, time.Time{}, Literal(`x`))
	assert.Equal(t, phaseEOF, ph)
	assert.Nil(t, m)
	var ee *EOFError
	if assert.ErrorAs(t, err, &ee) {
		assert.Equal(t, `tail`, string(ee.Pending))
	}
	assert.ErrorIs(t, err, ErrEOF)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, `tail`, string(e.buf.Pending()))

	// eof is sticky, no further reads
	reads := s.reads
	ph, m, err = runExpect(t, &e, s, time.Time{}, Literal(`x`), EOF{})
	require.NoError(t, err)
	assert.Equal(t, phaseMatched, ph)
	assert.Equal(t, outcome{Index: 1, Matched: `tail`}, outcomeOf(m, err))
	assert.Equal(t, reads, s.reads)

	// nothing left, eof matches the empty remainder
	_, m, err = runExpect(t, &e, s, time.Time{}, EOF{})
	require.NoError(t, err)
	assert.Equal(t, ``, m.String())
	assert.NotNil(t, m.Matched)
}

func TestEngine_literalAtEOFPrefersMatch(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte("done\n")}, eof: true}
	_, m, err := runExpect(t, &e, s, time.Time{}, Literal("done"), EOF{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, "\n", string(e.buf.Pending()))
}

func TestEngine_bufferFull(t *testing.T) {
	e := engine{maxSize: 4, readSize: 64}
	s := &fakeStream{chunks: [][]byte{[]byte(`abcdefgh`)}}
	ph, m, err := runExpect(t, &e, s, time.Time{}, Literal(`z`))
	assert.Equal(t, phaseFull, ph)
	assert.Nil(t, m)
	var fe *BufferFullError
	if assert.ErrorAs(t, err, &fe) {
		assert.Equal(t, 4, fe.Max)
		assert.Equal(t, `abcd`, string(fe.Pending))
	}
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, `abcd`, string(e.buf.Pending()))

	// consuming frees space for the rest
	_, m, err = runExpect(t, &e, s, time.Time{}, Literal(`c`))
	require.NoError(t, err)
	assert.Equal(t, `ab`, string(m.Before))
	_, m, err = runExpect(t, &e, s, time.Time{}, Literal(`f`))
	require.NoError(t, err)
	assert.Equal(t, `de`, string(m.Before))
}

func TestEngine_readError(t *testing.T) {
	boom := errors.New(`boom`)
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{chunks: [][]byte{[]byte(`abc`)}, err: boom}
	ph, m, err := runExpect(t, &e, s, time.Time{}, Literal(`z`))
	assert.Equal(t, phaseIOFailed, ph)
	assert.Nil(t, m)
	var ioe *IOError
	if assert.ErrorAs(t, err, &ioe) {
		assert.Equal(t, `read`, ioe.Op)
	}
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `abc`, string(e.buf.Pending()))
}

func TestEngine_regexGroups(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := &fakeStream{feed: []string{"user=bob", " id=7\n"}}
	_, m, err := runExpect(t, &e, s, time.Time{}, MustRegex(`user=(\w+)(?: x=(\d+))? id=(\d+)\n`))
	require.NoError(t, err)
	require.Len(t, m.Groups, 4)
	assert.Equal(t, "user=bob id=7\n", string(m.Groups[0]))
	assert.Equal(t, `bob`, string(m.Groups[1]))
	assert.Nil(t, m.Groups[2])
	assert.Equal(t, `7`, string(m.Groups[3]))
}

func TestEngine_check(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	s := new(fakeStream)

	m, err := e.check([]Pattern{Literal(`ok`)}, s.read)
	assert.NoError(t, err)
	assert.Nil(t, m)

	s.chunks = [][]byte{[]byte(`o`), []byte(`k!`)}
	m, err = e.check([]Pattern{Literal(`ok`)}, s.read)
	require.NoError(t, err)
	assert.Equal(t, `ok`, m.String())

	s.eof = true
	m, err = e.check([]Pattern{Literal(`ok`)}, s.read)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrEOF)
	assert.Equal(t, `!`, string(e.buf.Pending()))
}

func TestEngine_read(t *testing.T) {
	e := engine{maxSize: DefaultMaxBuffer}
	e.buf.Append([]byte(`pending`))
	s := &fakeStream{chunks: [][]byte{[]byte(`fresh`)}, eof: true}

	p := make([]byte, 4)
	n, err := e.read(p, s.read)
	require.NoError(t, err)
	assert.Equal(t, `pend`, string(p[:n]))
	n, err = e.read(p, s.read)
	require.NoError(t, err)
	assert.Equal(t, `ing`, string(p[:n]))
	assert.Equal(t, 0, s.reads)

	n, err = e.read(p, s.read)
	require.NoError(t, err)
	assert.Equal(t, `fres`, string(p[:n]))
	n, err = e.read(p, s.read)
	require.NoError(t, err)
	assert.Equal(t, `h`, string(p[:n]))
	_, err = e.read(p, s.read)
	assert.Equal(t, io.EOF, err)
	_, err = e.read(p, s.read)
	assert.Equal(t, io.EOF, err)

	n, err = e.read(nil, s.read)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewExpectation(t *testing.T) {
	_, err := newExpectation(time.Time{}, nil)
	assert.ErrorIs(t, err, ErrNoPatterns)
	_, err = newExpectation(time.Time{}, []Pattern{Literal(`a`), nil})
	assert.Error(t, err)
}
