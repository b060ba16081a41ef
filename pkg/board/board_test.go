package board_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardlab/pkg/board"
	"boardlab/pkg/channel"
	"boardlab/pkg/testkit"
)

func testBoard(pr *testkit.PowerRecorder, factory *testkit.ConsoleFactory) *board.Board {
	return &board.Board{
		Name:    "test",
		Power:   pr,
		Connect: factory.Connect,
	}
}

func TestRunPowerLifecycleExactness(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	err := b.Run(context.Background(), func(s *board.Session) error {
		assert.True(t, s.Channel().IsOpen())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"on", "off"}, pr.Sequence())
}

func TestRunPowersOffOnError(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	wantErr := fmt.Errorf("body failed")
	err := b.Run(context.Background(), func(*board.Session) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, []string{"on", "off"}, pr.Sequence())
}

func TestRunPowersOffOnPanic(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	func() {
		defer func() {
			require.NotNil(t, recover(), "expected the body's panic to propagate")
		}()
		_ = b.Run(context.Background(), func(*board.Session) error {
			panic("boom")
		})
	}()
	assert.Equal(t, []string{"on", "off"}, pr.Sequence())
}

func TestBoardIsReentrant(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	for i := 0; i < 2; i++ {
		err := b.Run(context.Background(), func(s *board.Session) error {
			assert.True(t, s.Channel().IsOpen())
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"on", "off", "on", "off"}, pr.Sequence())
	// Each session got its own fresh console.
	assert.Len(t, factory.Consoles, 2)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	s, err := b.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"on", "off"}, pr.Sequence())
	assert.False(t, s.Channel().IsOpen())
}

func TestOpenPowerOnFailure(t *testing.T) {
	pr := &testkit.PowerRecorder{FailOn: "on"}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	_, err := b.Open(context.Background())
	require.Error(t, err)
	// Power-off only runs once power-on has succeeded.
	assert.Equal(t, []string{"on"}, pr.Sequence())
	assert.Empty(t, factory.Consoles)
}

func TestOpenConnectFailurePowersOff(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	b := &board.Board{
		Name:  "test",
		Power: pr,
		Connect: func(context.Context) (io.ReadWriteCloser, error) {
			return nil, fmt.Errorf("no console server")
		},
	}

	_, err := b.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"on", "off"}, pr.Sequence())
}

func TestSessionChannelWorksEndToEnd(t *testing.T) {
	pr := &testkit.PowerRecorder{}
	factory := &testkit.ConsoleFactory{Opts: testkit.UBootOptions()}
	b := testBoard(pr, factory)

	err := b.Run(context.Background(), func(s *board.Session) error {
		ch := s.Channel()
		log, err := ch.ReadUntilPrompt(channel.MustRegex(`autoboot:\s+\d+\s+`), 2*time.Second, nil)
		if err != nil {
			return err
		}
		assert.Contains(t, log, "Hit any key to stop autoboot")
		return nil
	})
	require.NoError(t, err)
}
