package expect

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
)

type (
	// Pattern is a stateless matcher evaluated against the pending window of
	// a session's output. The set of implementations is closed: [Literal],
	// [Regex], [ByteCount] and [EOF].
	Pattern interface {
		fmt.Stringer
		evaluate(w window) Result
	}

	// Literal matches the first occurrence of an exact byte sequence.
	Literal []byte

	// Regex matches the leftmost match of a regular expression. See
	// [NewRegex] and [MustRegex].
	Regex struct {
		re *regexp.Regexp
	}

	// ByteCount matches the first n pending bytes, once at least n are
	// available.
	ByteCount int

	// EOF matches everything still pending, once the output stream has
	// ended.
	EOF struct{}

	// Result is the outcome of evaluating a [Pattern].
	Result struct {
		// Groups holds submatch index pairs, for [Regex] only.
		Groups  []int
		Start   int
		End     int
		Verdict Verdict
	}

	// Verdict classifies a [Result].
	Verdict uint8

	// window is the evaluation input: the pending bytes, plus whether the
	// stream has ended, and whether the buffer has reached its cap.
	window struct {
		data []byte
		eof  bool
		full bool
	}
)

const (
	// NoMatch indicates the pattern cannot match the current window.
	NoMatch Verdict = iota
	// NeedMore indicates the pattern might match once more bytes arrive.
	NeedMore
	// Matched indicates a match over [Result.Start, Result.End).
	Matched
)

var (
	_ Pattern = Literal(nil)
	_ Pattern = Regex{}
	_ Pattern = ByteCount(0)
	_ Pattern = EOF{}
)

// NewRegex compiles expr into a [Regex] pattern.
func NewRegex(expr string) (Regex, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Regex{}, err
	}
	return Regex{re: re}, nil
}

// MustRegex is like [NewRegex] but panics if expr does not compile.
func MustRegex(expr string) Regex {
	return Regex{re: regexp.MustCompile(expr)}
}

// RegexOf wraps an already compiled expression.
func RegexOf(re *regexp.Regexp) Regex {
	if re == nil {
		panic(`expect: nil regexp`)
	}
	return Regex{re: re}
}

// Evaluate runs p against data, as the engine would. The eof flag indicates
// the stream has ended, and no more bytes will arrive.
func Evaluate(p Pattern, data []byte, eof bool) Result {
	return p.evaluate(window{data: data, eof: eof})
}

func (x Verdict) String() string {
	switch x {
	case NoMatch:
		return `no match`
	case NeedMore:
		return `need more`
	case Matched:
		return `matched`
	default:
		return `Verdict(` + strconv.Itoa(int(x)) + `)`
	}
}

func (x Literal) String() string { return strconv.Quote(string(x)) }

func (x Literal) evaluate(w window) Result {
	if i := bytes.Index(w.data, x); i >= 0 {
		return Result{Verdict: Matched, Start: i, End: i + len(x)}
	}
	if w.eof || w.full {
		return Result{Verdict: NoMatch}
	}
	// a strict prefix of the literal at the tail might complete on the next read
	for k := min(len(x)-1, len(w.data)); k > 0; k-- {
		if bytes.HasSuffix(w.data, x[:k]) {
			return Result{Verdict: NeedMore}
		}
	}
	return Result{Verdict: NoMatch}
}

// Expr returns the underlying expression, or nil for the zero value.
func (x Regex) Expr() *regexp.Regexp { return x.re }

func (x Regex) String() string {
	if x.re == nil {
		return `regex()`
	}
	return `regex(` + x.re.String() + `)`
}

func (x Regex) evaluate(w window) Result {
	if x.re == nil {
		return Result{Verdict: NoMatch}
	}
	if loc := x.re.FindSubmatchIndex(w.data); loc != nil {
		return Result{Verdict: Matched, Start: loc[0], End: loc[1], Groups: loc}
	}
	// regexp has no partial match support, so stay optimistic until the
	// window can no longer change
	if w.eof || w.full {
		return Result{Verdict: NoMatch}
	}
	return Result{Verdict: NeedMore}
}

func (x ByteCount) String() string { return `bytes(` + strconv.Itoa(int(x)) + `)` }

func (x ByteCount) evaluate(w window) Result {
	n := max(int(x), 0)
	if len(w.data) >= n {
		return Result{Verdict: Matched, End: n}
	}
	if w.eof || w.full {
		return Result{Verdict: NoMatch}
	}
	return Result{Verdict: NeedMore}
}

func (EOF) String() string { return `eof` }

func (EOF) evaluate(w window) Result {
	if w.eof {
		return Result{Verdict: Matched, End: len(w.data)}
	}
	return Result{Verdict: NeedMore}
}
