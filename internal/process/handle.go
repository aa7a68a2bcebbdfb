package process

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// handle implements core.ProcessHandle for one launched process. Result
// delivery is single-writer (the Supervisor's wait goroutine) and
// multi-reader (Wait can be called more than once, or not at all).
type handle struct {
	taskID    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	cancel    context.CancelFunc
	startedAt time.Time
	log       *logging.Logger

	mu     sync.Mutex
	result *core.ProcessResult
	err    error
	done   chan struct{}
}

func (h *handle) TaskID() string { return h.taskID }

func (h *handle) setResult(result *core.ProcessResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return // already set
	default:
	}
	h.result, h.err = result, err
	close(h.done)
}

func (h *handle) Wait(ctx context.Context) (*core.ProcessResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel sends SIGINT to the process group, then cancels the launch
// context so the Supervisor's wait goroutine unblocks regardless.
// Cancelling that context makes exec kill the direct child with SIGKILL
// straight away, so the direct child gets no grace period; if the wait has
// still not finished 5 seconds later, the whole group gets SIGKILL.
// Grounded on the teacher's BaseAdapter.GracefulKill two-stage termination.
func (h *handle) Cancel() error {
	if h.cmd.Process == nil {
		h.cancel()
		return nil
	}
	pid := h.cmd.Process.Pid
	if err := signalGroup(pid, interruptSignal()); err != nil {
		h.log.Warn("interrupt signal failed, falling back to kill", "error", err)
		_ = h.cmd.Process.Kill()
		h.cancel()
		return nil
	}

	go func() {
		select {
		case <-h.done:
			return
		case <-time.After(5 * time.Second):
		}
		_ = signalGroup(pid, killSignal())
	}()
	h.cancel()
	return nil
}

func (h *handle) SendInput(data []byte) error {
	_, err := h.stdin.Write(data)
	return err
}

// SendControl translates an interactive control signal to an OS signal
// (interrupt, suspend), a close of stdin (eof), or a form-feed byte written
// to stdin (clear-screen).
func (h *handle) SendControl(signal core.ControlSignal) error {
	if h.cmd.Process == nil {
		return core.ErrState(core.CodeNotRunning, "process not running")
	}
	switch signal {
	case core.ControlInterrupt:
		return signalGroup(h.cmd.Process.Pid, interruptSignal())
	case core.ControlSuspend:
		return signalGroup(h.cmd.Process.Pid, suspendSignal())
	case core.ControlEOF:
		return h.stdin.Close()
	case core.ControlClearScreen:
		_, err := h.stdin.Write([]byte("\x0c"))
		return err
	default:
		return core.ErrValidation(core.CodeInvalidArguments, "unknown control signal: "+string(signal))
	}
}

var _ core.ProcessHandle = (*handle)(nil)
