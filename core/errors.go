package core

import (
	"errors"

	"github.com/realDragonium/Slumber/mc"
)

var (
	ErrMalformedHandshake = mc.ErrMalformedHandshake
	ErrNotValidHandshake  = mc.ErrNotValidHandshake
	ErrClientToSlow       = errors.New("client was to slow with sending its packets")
	ErrClientClosedConn   = errors.New("client closed the connection")

	ErrSpawnFailure       = errors.New("server process could not be started")
	ErrStartTimeout       = errors.New("server did not become ready in time")
	ErrControlChannelAuth = errors.New("rcon rejected the password")
	ErrUpstreamConnect    = errors.New("could not connect to the server")
	ErrForceKilled        = errors.New("server process had to be killed")
	ErrServerCrashed      = errors.New("server process exited unexpectedly")
	ErrNotRunning         = errors.New("server is not running")

	ErrBanned          = errors.New("ip address is banned")
	ErrLockout         = errors.New("lockout is enabled")
	ErrNotWhitelisted  = errors.New("player is not whitelisted")
	ErrNoMethodApplied = errors.New("no join method took the connection")
)
