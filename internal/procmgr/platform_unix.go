//go:build !windows

package procmgr

import (
	"os/exec"
	"syscall"
)

// configurePlatform sets a new process group so the whole subtree can
// be killed together.
func configurePlatform(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
