//go:build linux || darwin || freebsd

package procrun

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own group so an interrupt reaches
// helpers it spawns as well.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGINT)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func lowerPriority(pid, niceness int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, niceness)
}

func killGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
