package expect

import (
	"io"
	"strconv"
	"sync"
)

// transcript mirrors session I/O to a writer, in the form
//
//	write: "echo hi\n"
//	read: "echo hi\r\nhi\r\n"
type transcript struct {
	w  io.Writer
	mu sync.Mutex
}

func newTranscript(w io.Writer) *transcript {
	if w == nil {
		return nil
	}
	return &transcript{w: w}
}

func (x *transcript) record(direction string, p []byte) {
	if x == nil || len(p) == 0 {
		return
	}
	line := make([]byte, 0, len(direction)+len(p)+8)
	line = append(line, direction...)
	line = append(line, `: `...)
	line = strconv.AppendQuote(line, string(p))
	line = append(line, '\n')
	x.mu.Lock()
	defer x.mu.Unlock()
	_, _ = x.w.Write(line)
}
