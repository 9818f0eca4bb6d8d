//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows, which has no Setsid equivalent.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals are the signals that trigger a graceful server stop.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM is the polite stop signal; best effort on Windows.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL is the forceful stop signal.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
