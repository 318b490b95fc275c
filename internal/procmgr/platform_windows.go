//go:build windows

package procmgr

import "os/exec"

// configurePlatform is a no-op on Windows; process-group kill
// semantics differ and are out of scope for this runtime.
func configurePlatform(cmd *exec.Cmd) {}
