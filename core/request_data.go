package core

import (
	"net"
	"time"

	"github.com/realDragonium/Slumber/mc"
)

// RequestData is everything known about a single client connection once it
// has been classified. It belongs to the goroutine handling the connection.
type RequestData struct {
	// Legacy is set for pings of clients older than 1.7, nothing else is
	// known about those.
	Legacy     bool
	Type       mc.HandshakeState
	Handshake  mc.ServerBoundHandshake
	ServerAddr string
	Addr       net.Addr
	Username   string
	Forge      bool

	// The handshake and login start exactly as the client sent them.
	RawHandshake []byte
	RawLogin     []byte

	Created time.Time
	// Method is the index of the join method currently handling the
	// connection.
	Method int
}

func NewRequestData(addr net.Addr, c mc.Classification) RequestData {
	return RequestData{
		Legacy:       c.Legacy,
		Type:         c.Type,
		Handshake:    c.Handshake,
		ServerAddr:   c.Handshake.ParseServerAddress(),
		Addr:         addr,
		Username:     c.Username,
		Forge:        c.Handshake.IsForgeAddress(),
		RawHandshake: c.RawHandshake,
		RawLogin:     c.RawLogin,
		Created:      time.Now(),
	}
}

// Replay returns the bytes which have to be send to a server before the rest
// of the client connection can be copied over.
func (req RequestData) Replay() []byte {
	bb := make([]byte, 0, len(req.RawHandshake)+len(req.RawLogin))
	bb = append(bb, req.RawHandshake...)
	return append(bb, req.RawLogin...)
}

// IP returns the ip address of the client without port.
func (req RequestData) IP() string {
	if req.Addr == nil {
		return ""
	}
	switch addr := req.Addr.(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	}
	host, _, err := net.SplitHostPort(req.Addr.String())
	if err != nil {
		return req.Addr.String()
	}
	return host
}
