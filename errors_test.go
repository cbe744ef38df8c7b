package expect

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	cause := errors.New(`cause`)

	var err error = &SpawnError{Op: `start`, Path: `/bin/x`, Err: cause}
	assert.Equal(t, `expect: spawn "/bin/x": start: cause`, err.Error())
	assert.ErrorIs(t, err, cause)

	err = &IOError{Op: `read`, Err: io.ErrUnexpectedEOF}
	assert.Equal(t, `expect: read: unexpected EOF`, err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = &TimeoutError{Elapsed: time.Second, Pending: []byte(`abc`)}
	assert.Equal(t, `expect: timed out after 1s with 3 bytes pending`, err.Error())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrEOF)

	err = &EOFError{Pending: []byte(`ab`)}
	assert.ErrorIs(t, err, ErrEOF)
	assert.NotErrorIs(t, err, ErrBufferFull)

	err = &BufferFullError{Max: 8}
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Contains(t, err.Error(), `8 byte cap`)

	err = &WaitError{}
	assert.Equal(t, `expect: wait: <nil>`, err.Error())
}

func TestNewMatch(t *testing.T) {
	data := []byte(`key=value;`)
	m := newMatch(2, MustRegex(`(\w+)=(\d+)?(\w+)`), data, Result{
		Verdict: Matched,
		Start:   0,
		End:     9,
		Groups:  []int{0, 9, 0, 3, -1, -1, 4, 9},
	})
	assert.Equal(t, 2, m.Index)
	assert.Equal(t, `key=value`, m.String())
	assert.Equal(t, [][]byte{[]byte(`key=value`), []byte(`key`), nil, []byte(`value`)}, m.Groups)
	assert.NotNil(t, m.Before)
	assert.Empty(t, m.Before)

	// the match doesn't alias the window
	data[0] = 'K'
	assert.Equal(t, `key=value`, string(m.Matched))
	assert.Equal(t, `key`, string(m.Groups[1]))

	assert.Equal(t, ``, (*Match)(nil).String())
}

func TestTranscript(t *testing.T) {
	var buf bytes.Buffer
	x := newTranscript(&buf)
	x.record(`write`, []byte("ls\n"))
	x.record(`read`, nil)
	x.record(`read`, []byte("\x1b[0m\r\n"))
	assert.Equal(t, "write: \"ls\\n\"\nread: \"\\x1b[0m\\r\\n\"\n", buf.String())

	var none *transcript
	assert.Nil(t, newTranscript(nil))
	none.record(`read`, []byte(`x`))
}
