package reply

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSingleLine(t *testing.T) {
	r := New(230, "User logged in, proceed")
	assert.Equal(t, "230 User logged in, proceed\r\n", r.Format())
}

func TestFormatMultiline(t *testing.T) {
	r := NewMultiline(211, "Supported features:", []string{" MLSD", " UTF8"}, "END")
	assert.Equal(t, "211-Supported features:\r\n MLSD\r\n UTF8\r\n211 END\r\n", r.Format())
}

func TestParseRoundTrip(t *testing.T) {
	cases := []Reply{
		New(220, "Hello"),
		New(550, "File unavailable"),
		NewMultiline(211, "Supported features:", []string{" MLSD", " REST STREAM"}, "END"),
		NewMultiline(257, "first", nil, "last"),
	}
	for _, want := range cases {
		wire := want.Format()
		got, err := Parse(bufio.NewReader(strings.NewReader(wire)))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		wire    string
		wantErr error
	}{
		{"too short", "12\r\n", ErrTooShort},
		{"bad code", "2a0 hi\r\n", ErrBadCode},
		{"bad delimiter", "220xhi\r\n", ErrBadDelimiter},
		{"unterminated multiline", "211-first\r\n", ErrUnterminatedMultiline},
		{"code mismatch", "211-first\r\n212 last\r\n", ErrCodeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bufio.NewReader(strings.NewReader(tt.wire)))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseMultilineTerminatorMustMatchPrefix(t *testing.T) {
	wire := "211-first\r\nnot a terminator\r\n211 last\r\n"
	got, err := Parse(bufio.NewReader(strings.NewReader(wire)))
	require.NoError(t, err)
	assert.Equal(t, 211, got.Code)
	assert.Equal(t, []string{"first", "not a terminator", "last"}, got.Lines)
}
