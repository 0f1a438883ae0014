package server

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	"github.com/pires/go-proxyproto"
	"github.com/realDragonium/Slumber/core"
)

const rconLoginType = 3

var errRconUnreachable = errors.New("rcon port is not reachable yet")

// ControlChannel is the administrative session to the running server.
type ControlChannel interface {
	Cmd(command string) (string, error)
	Close() error
}

// DialControlChannel logs in on the rcon port of the server, with a PROXY
// protocol v2 header in front when sendProxyV2 is set. A rejected password
// is reported as core.ErrControlChannelAuth, everything else means the
// server isn't ready yet.
func DialControlChannel(addr, password string, timeout time.Duration, sendProxyV2 bool) (ControlChannel, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRconUnreachable, err)
	}
	if sendProxyV2 {
		header := proxyproto.HeaderProxyFromAddrs(2, conn.LocalAddr(), conn.RemoteAddr())
		if _, err := header.WriteTo(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: writing proxy header: %v", errRconUnreachable, err)
		}
	}

	client := &mcnet.RCONConn{Conn: conn, ReqID: rand.Int31()}
	if err := rconLogin(client, password, timeout); err != nil {
		conn.Close()
		return nil, err
	}
	return &rconChannel{client: client}, nil
}

func rconLogin(client *mcnet.RCONConn, password string, timeout time.Duration) error {
	if timeout > 0 {
		client.SetDeadline(time.Now().Add(timeout))
		defer client.SetDeadline(time.Time{})
	}
	if err := client.WritePacket(client.ReqID, rconLoginType, password); err != nil {
		return fmt.Errorf("%w: %v", errRconUnreachable, err)
	}
	id, _, _, err := client.ReadPacket()
	if err != nil {
		return fmt.Errorf("%w: %v", errRconUnreachable, err)
	}
	switch id {
	case client.ReqID:
		return nil
	case -1:
		return fmt.Errorf("%w: password rejected", core.ErrControlChannelAuth)
	default:
		return fmt.Errorf("%w: login answered for request %d", core.ErrControlChannelAuth, id)
	}
}

type rconChannel struct {
	mu     sync.Mutex
	client mcnet.RCONClientConn
}

func (ch *rconChannel) Cmd(command string) (string, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.client.Cmd(command); err != nil {
		return "", err
	}
	return ch.client.Resp()
}

func (ch *rconChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.client.Close()
}
