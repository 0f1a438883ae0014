package module

import (
	"net"

	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
)

func FilterIpFromAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// ConnectionLimiter decides whether a connection may continue. A refused
// connection comes with a *Rejection telling what to do with it.
type ConnectionLimiter interface {
	Allow(req core.RequestData) (allowed bool, err error)
}

// AddrFilter refuses connections by their address alone.
type AddrFilter interface {
	Refuse(addr net.Addr) bool
}

// Rejection is returned by limiters when they refuse a connection.
type Rejection struct {
	Err     error
	Message string
	// Drop closes the connection without answering anything.
	Drop bool
}

func (r *Rejection) Error() string {
	return r.Err.Error()
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Kick returns the login disconnect packet for this rejection.
func (r *Rejection) Kick() mc.Packet {
	return mc.NewDisconnect(r.Message)
}

type AlwaysAllowConnection struct{}

func (limiter AlwaysAllowConnection) Allow(req core.RequestData) (bool, error) {
	return true, nil
}

// LimiterChain asks every limiter in order, the first refusal wins.
type LimiterChain []ConnectionLimiter

func (chain LimiterChain) Allow(req core.RequestData) (bool, error) {
	for _, limiter := range chain {
		if ok, err := limiter.Allow(req); !ok {
			return false, err
		}
	}
	return true, nil
}

func NewLockout(message string) ConnectionLimiter {
	return lockout{message: message}
}

// lockout refuses every login, status requests still get answered.
type lockout struct {
	message string
}

func (l lockout) Allow(req core.RequestData) (bool, error) {
	if req.Type != mc.Login {
		return true, nil
	}
	return false, &Rejection{
		Err:     core.ErrLockout,
		Message: l.message,
	}
}
