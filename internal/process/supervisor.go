// Package process implements the Process Supervisor (spec.md §4.3): launches
// one OS process per task running an external-CLI runner, streams its
// output to a progress callback, and exposes interactive control (stdin
// injection, interrupt/eof/suspend) without blocking the caller on exit.
package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// Supervisor implements core.ProcessSupervisor: one handle per live task,
// looked up by task id for Cancel. Grounded on the teacher's BaseAdapter
// command-execution flow (context timeout, stdout/stderr capture, stderr
// line streaming) generalized from quorum's fixed CLI-adapter set to an
// arbitrary LaunchSpec per task.
type Supervisor struct {
	mu       sync.Mutex
	handles  map[string]*handle
	log      *logging.Logger
	extraEnv map[string]string
}

func New(log *logging.Logger) *Supervisor {
	return &Supervisor{handles: make(map[string]*handle), log: logging.Or(log)}
}

// Launch starts spec.Executable with spec.Args under spec.WorkingDir,
// streaming stdout/stderr chunks to spec.OnProgress as they arrive. The
// returned ProcessHandle.Wait blocks until the process exits, times out, or
// is cancelled; Launch itself returns as soon as the process has started.
func (s *Supervisor) Launch(ctx context.Context, spec core.LaunchSpec) (core.ProcessHandle, error) {
	if spec.Executable == "" {
		return nil, core.ErrValidation(core.CodeExecutableNotFound, "launch spec has no executable")
	}
	if _, err := exec.LookPath(spec.Executable); err != nil {
		return nil, core.ErrValidation(core.CodeExecutableNotFound, "executable not found: "+spec.Executable)
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = 3 * time.Hour
	}
	procCtx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(procCtx, spec.Executable, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range s.extraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	configureProcAttr(cmd)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	h := &handle{
		taskID: spec.TaskID,
		cmd:    cmd,
		stdin:  stdinPipe,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    s.log.WithTask(spec.TaskID),
	}

	if len(spec.Stdin) > 0 {
		go func() {
			_, _ = stdinPipe.Write(spec.Stdin)
		}()
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, core.ErrExecution("PROCESS_START_FAILED", "starting process").WithCause(err)
	}
	h.startedAt = start
	h.log.Info("process started", "executable", spec.Executable, "pid", cmd.Process.Pid)

	var wg sync.WaitGroup
	var combined bytes.Buffer
	var combinedMu sync.Mutex
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamPipe(stdoutPipe, &combined, &combinedMu, false, spec.OnProgress)
	}()
	go func() {
		defer wg.Done()
		streamPipe(stderrPipe, &combined, &combinedMu, true, spec.OnProgress)
	}()

	go func() {
		wg.Wait()
		err := cmd.Wait()
		result := &core.ProcessResult{StartedAt: h.startedAt, EndedAt: time.Now()}
		combinedMu.Lock()
		result.Output = combined.Bytes()
		combinedMu.Unlock()

		// A timeout or an explicit Cancel both unblock cmd.Wait via procCtx,
		// not through a process exit code, so their ProcessResult carries no
		// error: callers classify purely on TimedOut/Cancelled/ExitCode,
		// matching the terminal-state vocabulary spec.md §4.3 calls for
		// (distinct `timed-out`/`cancelled`/`failed` outcomes).
		switch {
		case procCtx.Err() == context.DeadlineExceeded:
			result.TimedOut = true
			result.ExitCode = -1
			h.setResult(result, nil)
		case procCtx.Err() == context.Canceled:
			result.Cancelled = true
			result.ExitCode = -1
			h.setResult(result, nil)
		case err != nil:
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.ExitCode = exitErr.ExitCode()
				h.setResult(result, nil)
			} else {
				h.setResult(result, fmt.Errorf("process wait: %w", err))
			}
		default:
			result.ExitCode = 0
			h.setResult(result, nil)
		}

		s.mu.Lock()
		delete(s.handles, spec.TaskID)
		s.mu.Unlock()
	}()

	s.mu.Lock()
	s.handles[spec.TaskID] = h
	s.mu.Unlock()

	return h, nil
}

// Cancel looks up the handle by task id and cancels it; a task with no
// running process is a no-op, matching Cleanup's crash-safe idempotence.
func (s *Supervisor) Cancel(taskID string) error {
	s.mu.Lock()
	h, ok := s.handles[taskID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Cancel()
}

// streamPipe copies complete lines from pipe into buf, guarded by mu so the
// stdout and stderr goroutines interleave their writes in true OS read
// order rather than landing in separate buffers concatenated after the
// fact.
func streamPipe(pipe io.ReadCloser, buf *bytes.Buffer, mu *sync.Mutex, isStderr bool, onProgress func(chunk []byte, stderr bool)) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		mu.Lock()
		buf.Write(line)
		buf.WriteByte('\n')
		mu.Unlock()
		if onProgress != nil {
			chunk := make([]byte, len(line)+1)
			copy(chunk, line)
			chunk[len(line)] = '\n'
			onProgress(chunk, isStderr)
		}
	}
}

var _ core.ProcessSupervisor = (*Supervisor)(nil)
