//go:build !windows

package plugins

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const extraFilesSupported = true

// configureProcess puts the child in its own process group so a kill
// reaches the interpreter and anything it started.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		return unix.Kill(-pid, unix.SIGKILL)
	}
	return unix.Kill(pid, unix.SIGKILL)
}
