package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralPatternMatchesSuffixOnly(t *testing.T) {
	p := Lit("=> ")

	tests := []struct {
		name    string
		buf     string
		wantOK  bool
		wantEnd int
	}{
		{"exact", "=> ", true, 3},
		{"with output before", "foo\n=> ", true, 7},
		{"mid buffer only", "=> trailing", false, 0},
		{"incomplete", "foo\n=", false, 0},
		{"empty", "", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, ok := p.match([]byte(tt.buf))
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantEnd, end)
			}
		})
	}
}

func TestRegexPatternTakesRightmostMatch(t *testing.T) {
	p := MustRegex(`autoboot:\s+\d+\s+`)

	buf := []byte("autoboot:  9 x autoboot:  3 \ntail")
	end, ok := p.match(buf)
	require.True(t, ok)
	assert.Equal(t, "autoboot:  9 x autoboot:  3 \n", string(buf[:end]))
}

func TestRegexPatternNoMatchWhileIncomplete(t *testing.T) {
	// The countdown digit has arrived but not its trailing whitespace.
	p := MustRegex(`autoboot:\s+\d+\s+`)
	_, ok := p.match([]byte("Hit any key to stop autoboot:  3"))
	assert.False(t, ok)
}

func TestRegexRejectsInvalidExpression(t *testing.T) {
	_, err := Regex("(unclosed")
	require.Error(t, err)
}

func TestPatternZeroAndString(t *testing.T) {
	assert.True(t, Pattern{}.IsZero())
	assert.False(t, Lit("x").IsZero())
	assert.Equal(t, "=> ", Lit("=> ").String())
	assert.Equal(t, `\d+`, MustRegex(`\d+`).String())
}
