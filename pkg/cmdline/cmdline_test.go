package cmdline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardlab/pkg/cmdline"
	"boardlab/pkg/testkit"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"simple", "simple"},
		{"with space", "'with space'"},
		{"semi;colon", "'semi;colon'"},
		{"$?", "'$?'"},
		{"a'b", `'a'"'"'b'`},
		{"path/to.file-1", "path/to.file-1"},
		{"glob*", "'glob*'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cmdline.Quote(tt.in), "input %q", tt.in)
	}
}

func TestQuoteRoundTripsThroughShellParsing(t *testing.T) {
	// Quoting followed by the target shell's own word splitting must
	// reconstruct the argument list element for element.
	noExpand := func(s string) string { return s }

	cases := [][]string{
		{"echo", "Hello World"},
		{"echo", "$?", "!#"},
		{"setenv", "serverip", "192.168.1.1"},
		{"echo", "spaces  and\ttabs"},
		{"echo", "quote's", "double\"quote"},
		{"echo", "semi;colon", "&&", "|", ">redir"},
		{"echo", ""},
	}
	for _, args := range cases {
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a
		}
		line, err := cmdline.Build(cmdline.Opts{}, anyArgs...)
		require.NoError(t, err)

		parsed, err := testkit.SplitWords(line, noExpand)
		require.NoError(t, err, "line %q", line)
		assert.Equal(t, args, parsed, "line %q", line)
	}
}

func TestBuildMixedArguments(t *testing.T) {
	opts := cmdline.Opts{PathRoot: "/tftpboot"}

	line, err := cmdline.Build(opts,
		"tftp",
		cmdline.F("0x%x", 0x82000000),
		cmdline.Path("/tftpboot/images/zImage"),
		cmdline.Env("serverip"),
		cmdline.Raw("&&"),
		"boot m",
	)
	require.NoError(t, err)
	assert.Equal(t, "tftp 0x82000000 images/zImage ${serverip} && 'boot m'", line)
}

func TestBuildNoTrailingWhitespace(t *testing.T) {
	line, err := cmdline.Build(cmdline.Opts{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "version", line)
}

func TestBuildRejectsPathOutsideRoot(t *testing.T) {
	_, err := cmdline.Build(cmdline.Opts{PathRoot: "/tftpboot"}, cmdline.Path("/etc/passwd"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount root")
}

func TestBuildRejectsUnsupportedType(t *testing.T) {
	_, err := cmdline.Build(cmdline.Opts{}, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestEnvRendering(t *testing.T) {
	s, err := cmdline.Env("bootargs").RenderShell(cmdline.Opts{})
	require.NoError(t, err)
	assert.Equal(t, "${bootargs}", s)
}
