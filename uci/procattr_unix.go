//go:build unix

package uci

import (
	"os/exec"
	"syscall"
)

// detach starts the engine in its own process group so a terminal Ctrl-C
// reaches the rater alone. Engines are stopped through Close.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
