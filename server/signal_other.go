//go:build !aix && !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd && !solaris
// +build !aix,!darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd,!solaris

package server

import (
	"errors"
	"os"
)

const canFreeze = false

var errFreezeUnsupported = errors.New("freezing processes is not supported on this platform")

func freezeProcess(p *os.Process) error {
	return errFreezeUnsupported
}

func unfreezeProcess(p *os.Process) error {
	return errFreezeUnsupported
}

// There is no graceful signal, without rcon the process gets killed.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}
