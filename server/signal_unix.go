//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package server

import (
	"os"

	"golang.org/x/sys/unix"
)

const canFreeze = true

func freezeProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGSTOP)
}

func unfreezeProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGCONT)
}

func terminateProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGTERM)
}
