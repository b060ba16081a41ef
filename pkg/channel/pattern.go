package channel

import (
	"bytes"
	"regexp"
)

// Pattern is a prompt matcher with two variants, literal and regular
// expression, sharing one "search the accumulated buffer" operation.
//
// A literal pattern matches only as the suffix of the buffer: console
// noise that happens to contain the prompt string mid-line (for example a
// boot message quoting "=> ") must not terminate the read. A regular
// expression pattern is searched over the whole buffer and the rightmost
// match wins, so that a false partial match in earlier noise is superseded
// once the real prompt text arrives. Bytes following a regex match stay
// unconsumed; this is what lets the steady prompt survive an autoboot
// banner and the prompt arriving packed in a single transport read.
type Pattern struct {
	literal string
	re      *regexp.Regexp
}

// Lit returns a literal pattern.
func Lit(s string) Pattern {
	return Pattern{literal: s}
}

// Regex compiles expr into a regular-expression pattern.
func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{re: re}, nil
}

// MustRegex is Regex for patterns known valid at compile time.
func MustRegex(expr string) Pattern {
	return Pattern{re: regexp.MustCompile(expr)}
}

// IsZero reports whether p is the zero Pattern (no matcher configured).
func (p Pattern) IsZero() bool {
	return p.literal == "" && p.re == nil
}

// String returns the pattern source text, for diagnostics.
func (p Pattern) String() string {
	if p.re != nil {
		return p.re.String()
	}
	return p.literal
}

// match searches buf and returns the end offset of the accepted match.
func (p Pattern) match(buf []byte) (end int, ok bool) {
	if p.re != nil {
		locs := p.re.FindAllIndex(buf, -1)
		if len(locs) == 0 {
			return 0, false
		}
		return locs[len(locs)-1][1], true
	}
	if p.literal != "" && bytes.HasSuffix(buf, []byte(p.literal)) {
		return len(buf), true
	}
	return 0, false
}
