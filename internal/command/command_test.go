package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKnownVerb(t *testing.T) {
	c := Parse("RETR /docs/readme.txt\r\n")
	assert.Equal(t, RETR, c.Verb)
	assert.Equal(t, "/docs/readme.txt", c.Argument)
}

func TestParseCaseInsensitiveVerb(t *testing.T) {
	c := Parse("retr /docs/readme.txt")
	assert.Equal(t, RETR, c.Verb)
}

func TestParseNoArgument(t *testing.T) {
	c := Parse("PWD\r\n")
	assert.Equal(t, PWD, c.Verb)
	assert.Equal(t, "", c.Argument)
}

func TestParseUnknownVerb(t *testing.T) {
	c := Parse("XCRC foo.bin\r\n")
	assert.Equal(t, Unknown, c.Verb)
}

func TestParseArgumentPreservesInteriorSpaces(t *testing.T) {
	c := Parse("MFMT 20020717210715 /docs/a file.txt\r\n")
	assert.Equal(t, MFMT, c.Verb)
	assert.Equal(t, "20020717210715 /docs/a file.txt", c.Argument)
}
