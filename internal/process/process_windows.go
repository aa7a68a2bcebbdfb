//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// configureProcAttr is a no-op on Windows; process-group signaling below
// falls back to Process.Kill instead.
func configureProcAttr(cmd *exec.Cmd) {}

func signalGroup(pid int, sig syscall.Signal) error { return nil }

func interruptSignal() syscall.Signal { return syscall.Signal(0) }
func suspendSignal() syscall.Signal   { return syscall.Signal(0) }
func killSignal() syscall.Signal      { return syscall.Signal(0) }
