//go:build windows

package daemon

import "os"

var activateSignal os.Signal
