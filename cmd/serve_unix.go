//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs puts the backgrounded server into its own session so
// it survives the parent terminal.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals are the signals that trigger a graceful server stop.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// sigTERM is the polite stop signal for the platform.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL is the forceful stop signal for the platform.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
