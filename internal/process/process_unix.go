//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr isolates the child in its own process group so signals
// can be delivered to it and anything it spawns as a unit.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return fmt.Errorf("getpgid(%d): %w", pid, err)
	}
	if err := syscall.Kill(-pgid, sig); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("kill pgid %d: %w", pgid, err)
	}
	return nil
}

func interruptSignal() syscall.Signal { return syscall.SIGINT }
func suspendSignal() syscall.Signal   { return syscall.SIGTSTP }
func killSignal() syscall.Signal      { return syscall.SIGKILL }
