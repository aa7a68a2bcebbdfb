package process

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

func TestLaunchCapturesOutputAndExitCode(t *testing.T) {
	sup := New(logging.Nop())
	var mu sync.Mutex
	var chunks bytes.Buffer

	h, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-1",
		Executable: "sh",
		Args:       []string{"-c", "echo hello"},
		OnProgress: func(chunk []byte, stderr bool) {
			mu.Lock()
			defer mu.Unlock()
			chunks.Write(chunk)
		},
	})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, chunks.String(), "hello")
}

func TestLaunchReportsNonZeroExit(t *testing.T) {
	sup := New(logging.Nop())
	h, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-2",
		Executable: "sh",
		Args:       []string{"-c", "exit 7"},
	})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestLaunchUnknownExecutableFails(t *testing.T) {
	sup := New(logging.Nop())
	_, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-3",
		Executable: "definitely-not-a-real-binary-xyz",
	})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestLaunchTimesOut(t *testing.T) {
	sup := New(logging.Nop())
	h, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-4",
		Executable: "sh",
		Args:       []string{"-c", "sleep 5"},
		Timeout:    50 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestCancelStopsRunningProcess(t *testing.T) {
	sup := New(logging.Nop())
	h, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-5",
		Executable: "sh",
		Args:       []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)

	require.NoError(t, sup.Cancel("t-5"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := h.Wait(ctx)
	require.NoError(t, err, "cancelled process should reach a terminal wait within the timeout")
	assert.True(t, result.Cancelled)
}

func TestSendInputReachesProcessStdin(t *testing.T) {
	sup := New(logging.Nop())
	var mu sync.Mutex
	var out bytes.Buffer

	h, err := sup.Launch(context.Background(), core.LaunchSpec{
		TaskID:     "t-6",
		Executable: "cat",
		OnProgress: func(chunk []byte, stderr bool) {
			mu.Lock()
			defer mu.Unlock()
			out.Write(chunk)
		},
	})
	require.NoError(t, err)

	require.NoError(t, h.SendInput([]byte("ping\n")))
	require.NoError(t, h.SendControl(core.ControlEOF))

	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, out.String(), "ping")
}

func TestCancelOnAlreadyExitedTaskIsNoop(t *testing.T) {
	sup := New(logging.Nop())
	err := sup.Cancel("never-launched")
	require.NoError(t, err)
}
