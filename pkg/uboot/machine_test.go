package uboot_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardlab/pkg/channel"
	"boardlab/pkg/cmdline"
	"boardlab/pkg/console"
	"boardlab/pkg/testkit"
	"boardlab/pkg/uboot"
)

func testConfig() uboot.Config {
	cfg := uboot.DefaultConfig()
	cfg.Prompt = "=> "
	cfg.BootTimeout = 2 * time.Second
	cfg.CommandTimeout = 2 * time.Second
	return cfg
}

// scriptedMachine boots a machine on a fresh scripted console.
func scriptedMachine(t *testing.T) *uboot.Machine {
	t.Helper()
	ch := channel.New(testkit.NewConsole(testkit.UBootOptions()))
	t.Cleanup(func() { _ = ch.Close() })

	m, err := uboot.Attach("test-uboot", ch, testConfig(), nil)
	require.NoError(t, err)
	return m
}

func TestBootInterceptionScenario(t *testing.T) {
	// The canonical stream: banner, countdown, steady prompt, delivered
	// in a single transport read.
	stream := testkit.NewStream("U-Boot 2020.01\nHit any key to stop autoboot:  3 \n=> ")
	ch := channel.New(stream)
	defer ch.Close()

	m, err := uboot.Attach("wandboard-uboot", ch, testConfig(), nil)
	require.NoError(t, err)

	// Boot log is the captured text minus its first line; the matched
	// countdown banner is included.
	assert.Equal(t, "Hit any key to stop autoboot:  3 \n", m.Bootlog())
	// The interrupt keys were injected.
	assert.Equal(t, "\n", stream.Sent())
	// The machine is synchronized: no bytes left unconsumed.
	_, err = ch.Recv(50 * time.Millisecond)
	assert.True(t, channel.IsTimeout(err))
}

func TestBootInterceptionSplitReads(t *testing.T) {
	// The countdown banner arrives split mid-pattern.
	stream := testkit.NewStream("U-Boot 2020.01\nHit any key to stop auto", "boot:  3", " \n")
	ch := channel.New(stream)
	defer ch.Close()

	done := make(chan struct{})
	go func() {
		// The console answers the interrupt with the prompt.
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if stream.Sent() == "\n" {
				stream.Feed("=> ")
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	m, err := uboot.Attach("test-uboot", ch, testConfig(), nil)
	<-done
	require.NoError(t, err)
	assert.Equal(t, "Hit any key to stop autoboot:  3 \n", m.Bootlog())
}

func TestBootWithoutAutoboot(t *testing.T) {
	opts := testkit.UBootOptions()
	opts.AutobootBanner = ""
	ch := channel.New(testkit.NewConsole(opts))
	defer ch.Close()

	cfg := testConfig()
	cfg.AutobootPrompt = ""
	m, err := uboot.Attach("test-uboot", ch, cfg, nil)
	require.NoError(t, err)

	out, err := m.Exec0("version")
	require.NoError(t, err)
	assert.Contains(t, out, "U-Boot")
}

func TestBootTimeoutIsFatal(t *testing.T) {
	// No autoboot banner ever appears.
	stream := testkit.NewStream("stuck in early init\n")
	ch := channel.New(stream)
	defer ch.Close()

	cfg := testConfig()
	cfg.BootTimeout = 100 * time.Millisecond
	_, err := uboot.Attach("test-uboot", ch, cfg, nil)
	require.Error(t, err)
	assert.True(t, channel.IsTimeout(err))
}

func TestExecEcho(t *testing.T) {
	m := scriptedMachine(t)

	out, err := m.Exec0("echo", "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", out)
}

func TestExecQuotingReachesShellLiterally(t *testing.T) {
	m := scriptedMachine(t)

	out, err := m.Exec0("echo", "$?", "!#")
	require.NoError(t, err)
	assert.Equal(t, "$? !#\n", out)

	out, err = m.Exec0("echo", "with  spaces", "semi;colon")
	require.NoError(t, err)
	assert.Equal(t, "with  spaces semi;colon\n", out)
}

func TestExecReturnCodes(t *testing.T) {
	m := scriptedMachine(t)

	code, out, err := m.Exec("false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Equal(t, "", out)

	code, _, err = m.Exec("true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecReturnCodeIsolation(t *testing.T) {
	// Consecutive non-zero statuses must each be attributed to their
	// own command, never to the status probe.
	m := scriptedMachine(t)

	code, _, err := m.Exec("false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	code, _, err = m.Exec("exit", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	code, _, err = m.Exec("false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	code, _, err = m.Exec("true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExec0FailureCarriesContext(t *testing.T) {
	m := scriptedMachine(t)

	_, err := m.Exec0("false")
	require.Error(t, err)

	var cmdErr *console.CommandFailedError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "test-uboot", cmdErr.Machine)
	assert.Equal(t, "false", cmdErr.Command)
	assert.Equal(t, 1, cmdErr.Code)
}

func TestTestSwallowsOutput(t *testing.T) {
	m := scriptedMachine(t)

	ok, err := m.Test("true")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Test("false")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnvRoundTrip(t *testing.T) {
	m := scriptedMachine(t)

	_, err := m.Exec0("setenv", "bootdelay", "3")
	require.NoError(t, err)

	value, err := m.GetEnv("bootdelay")
	require.NoError(t, err)
	assert.Equal(t, "3", value)

	out, err := m.Exec0("printenv", "bootdelay")
	require.NoError(t, err)
	assert.Equal(t, "bootdelay=3\n", out)
}

func TestExecStreamsToSink(t *testing.T) {
	var sink bytes.Buffer
	ch := channel.New(testkit.NewConsole(testkit.UBootOptions()))
	defer ch.Close()

	m, err := uboot.Attach("test-uboot", ch, testConfig(), &sink)
	require.NoError(t, err)

	_, err = m.Exec0("echo", "observed")
	require.NoError(t, err)
	assert.Contains(t, sink.String(), "observed")
}

func TestInteractiveResyncSuccess(t *testing.T) {
	m := scriptedMachine(t)

	in := strings.NewReader(string([]byte{channel.EscapeKey}))
	var out bytes.Buffer
	require.NoError(t, m.Interactive(in, &out))

	// The machine is usable again after the hand-off.
	res, err := m.Exec0("echo", "back")
	require.NoError(t, err)
	assert.Equal(t, "back\n", res)
}

func TestInteractiveResyncFailureIsDistinct(t *testing.T) {
	// A console that goes mute after boot: the post-interactive wake
	// gets no prompt back within the bounded wait.
	stream := testkit.NewStream("=> ")
	ch := channel.New(stream)
	defer ch.Close()

	cfg := testConfig()
	cfg.AutobootPrompt = ""
	m, err := uboot.Attach("test-uboot", ch, cfg, nil)
	require.NoError(t, err)

	in := strings.NewReader(string([]byte{channel.EscapeKey}))
	err = m.Interactive(in, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, uboot.ErrResyncFailed)
}

func TestBuildCommandWithSpecialTokens(t *testing.T) {
	m := scriptedMachine(t)

	line, err := m.BuildCommand("setenv", "serverip", cmdline.Env("gatewayip"))
	require.NoError(t, err)
	assert.Equal(t, "setenv serverip ${gatewayip}", line)
}
