package expect

// DefaultMaxBuffer is the default cap on pending bytes, see [WithMaxBuffer].
const DefaultMaxBuffer = 1 << 20

// Buffer accumulates output that has been read but not yet consumed by a
// match. Bytes are never reordered, and only ever leave from the front.
//
// The zero value is an empty buffer ready for use.
type Buffer struct {
	data  []byte
	start int
}

// Len returns the number of pending bytes.
func (x *Buffer) Len() int { return len(x.data) - x.start }

// Pending returns a view of the unconsumed bytes. The slice is only valid
// until the next call that modifies the buffer.
func (x *Buffer) Pending() []byte { return x.data[x.start:] }

// Append adds p to the end of the pending region.
func (x *Buffer) Append(p []byte) {
	copy(x.reserve(len(p)), p)
	x.commit(len(p))
}

// ConsumeThrough removes the first offset pending bytes. It panics if
// offset is out of range.
func (x *Buffer) ConsumeThrough(offset int) {
	if offset < 0 || offset > x.Len() {
		panic(`expect: consume offset out of range`)
	}
	x.start += offset
	if x.start == len(x.data) {
		x.data = x.data[:0]
		x.start = 0
	}
}

// Reset discards all pending bytes.
func (x *Buffer) Reset() {
	x.data = x.data[:0]
	x.start = 0
}

// reserve returns n bytes of spare capacity after the pending region,
// compacting or growing as needed. Callers write into it then call commit.
func (x *Buffer) reserve(n int) []byte {
	if cap(x.data)-len(x.data) < n && x.start > 0 {
		// shift the pending region down, costs O(Len)
		m := copy(x.data, x.data[x.start:])
		x.data = x.data[:m]
		x.start = 0
	}
	if cap(x.data)-len(x.data) < n {
		grown := make([]byte, len(x.data), max(2*cap(x.data), len(x.data)+n, 512))
		copy(grown, x.data)
		x.data = grown
	}
	return x.data[len(x.data) : len(x.data)+n]
}

func (x *Buffer) commit(n int) {
	x.data = x.data[:len(x.data)+n]
}
