package expect

import (
	"bytes"
)

// Match is the result of a successful expect call. All byte slices are
// copies, owned by the caller.
type Match struct {
	// Pattern is the pattern that matched.
	Pattern Pattern

	// Before holds the bytes preceding the match, which were consumed
	// along with it.
	Before []byte

	// Matched holds the bytes of the match itself.
	Matched []byte

	// Groups holds the submatches of a [Regex], with Groups[0] equal to
	// Matched, and nil entries for groups that did not participate. It is
	// nil for other pattern types.
	Groups [][]byte

	// Index is the position of Pattern in the list passed to expect.
	Index int

	// Start and End locate the match within the pending window, as it was
	// when the match occurred.
	Start int
	End   int
}

func newMatch(index int, pattern Pattern, data []byte, r Result) *Match {
	m := Match{
		Pattern: pattern,
		Before:  bytes.Clone(data[:r.Start]),
		Matched: bytes.Clone(data[r.Start:r.End]),
		Index:   index,
		Start:   r.Start,
		End:     r.End,
	}
	if m.Before == nil {
		m.Before = []byte{}
	}
	if m.Matched == nil {
		m.Matched = []byte{}
	}
	if r.Groups != nil {
		m.Groups = make([][]byte, len(r.Groups)/2)
		for i := range m.Groups {
			if lo, hi := r.Groups[2*i], r.Groups[2*i+1]; lo >= 0 {
				m.Groups[i] = bytes.Clone(data[lo:hi])
				if m.Groups[i] == nil {
					m.Groups[i] = []byte{}
				}
			}
		}
	}
	return &m
}

// String returns the matched text.
func (x *Match) String() string {
	if x == nil {
		return ``
	}
	return string(x.Matched)
}
