//go:build !unix

package session

import (
	"os"
	"syscall"
)

var (
	quitSignals    = []os.Signal{syscall.SIGTERM}
	ignoredSignals []os.Signal
)
