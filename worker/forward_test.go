package worker_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pires/go-proxyproto"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/worker"
)

func TestTarget_DialSendsProxyHeader(t *testing.T) {
	tt := []struct {
		name   string
		source *net.TCPAddr
		proto  proxyproto.AddressFamilyAndProtocol
	}{
		{
			name:   "ipv4",
			source: &net.TCPAddr{IP: net.ParseIP("10.0.0.5").To4(), Port: 51234},
			proto:  proxyproto.TCPv4,
		},
		{
			name:   "ipv6",
			source: &net.TCPAddr{IP: net.ParseIP("2001:db8::5"), Port: 51234},
			proto:  proxyproto.TCPv6,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			defer ln.Close()
			headerCh := make(chan *proxyproto.Header, 1)
			go func() {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				defer conn.Close()
				header, err := proxyproto.Read(bufio.NewReader(conn))
				if err != nil {
					t.Log(err)
				}
				headerCh <- header
			}()

			target := worker.Target{Address: ln.Addr().String(), SendProxyV2: true, DialTimeout: time.Second}
			server, err := target.Dial(core.RequestData{Addr: tc.source})
			if err != nil {
				t.Fatal(err)
			}
			defer server.Close()

			select {
			case header := <-headerCh:
				if header == nil {
					t.Fatal("no header received")
				}
				if header.Version != 2 || header.TransportProtocol != tc.proto {
					t.Errorf("unexpected header: %+v", header)
				}
				if diff := cmp.Diff(tc.source.String(), header.SourceAddr.String()); diff != "" {
					t.Errorf("source address mismatch (-want +got):\n%s", diff)
				}
			case <-time.After(defaultChTimeout):
				t.Fatal("timed out waiting for the header")
			}
		})
	}
}

func TestTarget_DialFailure(t *testing.T) {
	target := worker.Target{Address: closedAddr(t), DialTimeout: time.Second}
	_, err := target.Dial(core.RequestData{Addr: clientAddr})
	if !errors.Is(err, core.ErrUpstreamConnect) {
		t.Errorf("expected upstream connect error but got: %v", err)
	}
}

func TestRelay_CopiesBothWays(t *testing.T) {
	client, proxyClient := net.Pipe()
	proxyServer, server := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Relay(proxyClient, proxyClient, proxyServer, proxyServer)
	}()

	toServer := []byte{1, 2, 3, 4, 5}
	go client.Write(toServer)
	received := make([]byte, len(toServer))
	if _, err := io.ReadFull(server, received); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, toServer) {
		t.Errorf("got %v; want %v", received, toServer)
	}

	toClient := []byte{9, 8, 7}
	go server.Write(toClient)
	received = make([]byte, len(toClient))
	if _, err := io.ReadFull(client, received); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, toClient) {
		t.Errorf("got %v; want %v", received, toClient)
	}

	server.Close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(defaultChTimeout):
		t.Fatal("relay did not stop after the server closed")
	}
	expectClosed(t, client)
}
