//go:build unix

package session

import (
	"os"
	"syscall"
)

var (
	quitSignals    = []os.Signal{syscall.SIGHUP, syscall.SIGTERM}
	ignoredSignals = []os.Signal{syscall.SIGTSTP}
)
