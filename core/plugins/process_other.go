//go:build windows

package plugins

import "os/exec"

// Child processes cannot inherit arbitrary descriptors here.
const extraFilesSupported = false

func configureProcess(*exec.Cmd) {}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
