//go:build !windows

package daemon

import (
	"os"
	"syscall"
)

var activateSignal os.Signal = syscall.SIGUSR1
