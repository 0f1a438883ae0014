package worker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pires/go-proxyproto"
	"github.com/realDragonium/Slumber/core"
	"golang.org/x/sync/errgroup"
)

// Target is a server connections can be forwarded to.
type Target struct {
	Address     string
	SendProxyV2 bool
	DialTimeout time.Duration
}

// Dial connects to the target and writes the PROXY protocol header for req
// when configured.
func (target Target) Dial(req core.RequestData) (net.Conn, error) {
	server, err := net.DialTimeout("tcp", target.Address, target.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUpstreamConnect, err)
	}
	if target.SendProxyV2 {
		header := proxyHeader(req.Addr, server.RemoteAddr())
		if _, err := header.WriteTo(server); err != nil {
			server.Close()
			return nil, fmt.Errorf("%w: writing proxy header: %v", core.ErrUpstreamConnect, err)
		}
	}
	return server, nil
}

func proxyHeader(source, destination net.Addr) *proxyproto.Header {
	transport := proxyproto.TCPv4
	if addr, ok := source.(*net.TCPAddr); ok && addr.IP.To4() == nil {
		transport = proxyproto.TCPv6
	}
	return &proxyproto.Header{
		Version:           2,
		Command:           proxyproto.PROXY,
		TransportProtocol: transport,
		SourceAddr:        source,
		DestinationAddr:   destination,
	}
}

// Forward sends the connection to target: the bytes read while classifying
// are replayed and the rest is copied in both directions. The client is
// closed in every case.
func Forward(client net.Conn, clientReader io.Reader, req core.RequestData, target Target) error {
	server, err := target.Dial(req)
	if err != nil {
		client.Close()
		return err
	}
	if _, err := server.Write(req.Replay()); err != nil {
		client.Close()
		server.Close()
		return fmt.Errorf("%w: replaying handshake: %v", core.ErrUpstreamConnect, err)
	}
	return Relay(client, clientReader, server, server)
}

// Relay copies between client and server until either side is done, both
// are closed before it returns. The readers are used instead of the
// connections themselves so buffered bytes are not lost.
func Relay(client net.Conn, clientReader io.Reader, server net.Conn, serverReader io.Reader) error {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			server.Close()
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(server, clientReader)
		return copyErr(err)
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(client, serverReader)
		return copyErr(err)
	})
	return g.Wait()
}

func copyErr(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
