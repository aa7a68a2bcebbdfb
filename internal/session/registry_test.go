package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

func drainAvailable(ch <-chan core.SessionOutput) []core.SessionOutput {
	var out []core.SessionOutput
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func TestCreateTwiceConflicts(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	_, err = r.Create("s1", "t1")
	assert.True(t, core.IsCategory(err, core.ErrCatConflict))
}

func TestPublishAndSubscribeReplaysPrefix(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	require.NoError(t, r.Start("s1"))
	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("hello ")))
	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("world")))

	ch, cancel, err := r.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()

	events := drainAvailable(ch)
	require.Len(t, events, 2)
	assert.Equal(t, "hello ", string(events[0].Data))
	assert.Equal(t, "world", string(events[1].Data))
}

func TestLiveSubscriberReceivesSubsequentPublishes(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	ch, cancel, err := r.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("live")))
	events := drainAvailable(ch)
	require.Len(t, events, 1)
	assert.Equal(t, "live", string(events[0].Data))
}

func TestFinishClosesSubscriberAfterTerminalEvent(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	ch, _, err := r.Subscribe("s1")
	require.NoError(t, err)

	code := 0
	require.NoError(t, r.Finish("s1", core.SessionCompleted, &code))

	events := drainAvailable(ch)
	require.Len(t, events, 1)
	assert.Equal(t, core.OutputExit, events[0].Kind)

	_, stillOpen := <-ch
	assert.False(t, stillOpen)
}

func TestSubscribeAfterTerminalReplaysAndClosesImmediately(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("x")))
	require.NoError(t, r.Finish("s1", core.SessionCompleted, nil))

	ch, _, err := r.Subscribe("s1")
	require.NoError(t, err)
	events := drainAvailable(ch)
	require.Len(t, events, 2)
	assert.Equal(t, core.OutputStdout, events[0].Kind)
	assert.Equal(t, core.OutputExit, events[1].Kind)
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishAfterFinishIsRejected(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	require.NoError(t, r.Finish("s1", core.SessionFailed, nil))

	err = r.Publish("s1", core.OutputStdout, []byte("x"))
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestFinishIsIdempotent(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	require.NoError(t, r.Finish("s1", core.SessionCompleted, nil))
	require.NoError(t, r.Finish("s1", core.SessionFailed, nil))

	info, ok := r.Info("s1")
	require.True(t, ok)
	assert.Equal(t, core.SessionCompleted, info.Status)
}

func TestFinishTimedOutAppendsExitThenTerminated(t *testing.T) {
	r := New(0, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	ch, _, err := r.Subscribe("s1")
	require.NoError(t, err)

	code := -1
	require.NoError(t, r.FinishTimedOut("s1", &code))

	events := drainAvailable(ch)
	require.Len(t, events, 2)
	assert.Equal(t, core.OutputExit, events[0].Kind)
	require.NotNil(t, events[0].ExitCode)
	assert.Equal(t, -1, *events[0].ExitCode)
	assert.Equal(t, core.OutputTerminated, events[1].Kind)
	assert.Nil(t, events[1].ExitCode)

	info, ok := r.Info("s1")
	require.True(t, ok)
	assert.Equal(t, core.SessionFailed, info.Status)

	_, stillOpen := <-ch
	assert.False(t, stillOpen)
}

func TestBufferOverflowMarksTruncated(t *testing.T) {
	r := New(8, logging.Nop())
	_, err := r.Create("s1", "t1")
	require.NoError(t, err)
	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("0123456789")))
	require.NoError(t, r.Publish("s1", core.OutputStdout, []byte("abcdefghij")))

	ch, cancel, err := r.Subscribe("s1")
	require.NoError(t, err)
	defer cancel()
	events := drainAvailable(ch)
	require.NotEmpty(t, events)
	assert.Equal(t, core.OutputTruncated, events[0].Kind)
}

func TestSubscribeUnknownSessionFails(t *testing.T) {
	r := New(0, logging.Nop())
	_, _, err := r.Subscribe("nope")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}
