package mc_test

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/realDragonium/Slumber/mc"
)

func TestPacket_Marshal(t *testing.T) {
	tt := []struct {
		packet   mc.Packet
		expected []byte
	}{
		{
			packet: mc.Packet{
				ID:   0x00,
				Data: []byte{0x00, 0xf2},
			},
			expected: []byte{0x03, 0x00, 0x00, 0xf2},
		},
		{
			packet: mc.Packet{
				ID:   0x0f,
				Data: []byte{0x00, 0xf2, 0x03, 0x50},
			},
			expected: []byte{0x05, 0x0f, 0x00, 0xf2, 0x03, 0x50},
		},
	}

	for _, tc := range tt {
		actual := tc.packet.Marshal()
		if !bytes.Equal(actual, tc.expected) {
			t.Errorf("got: %v; want: %v", actual, tc.expected)
		}
	}
}

func TestReadPacket(t *testing.T) {
	tt := []struct {
		data           []byte
		expectedPacket mc.Packet
		expectedErr    error
	}{
		{
			data:           []byte{0x03, 0x00, 0x00, 0xf2},
			expectedPacket: mc.Packet{ID: 0x00, Data: []byte{0x00, 0xf2}},
		},
		{
			data:           []byte{0x01, 0x0f},
			expectedPacket: mc.Packet{ID: 0x0f, Data: []byte{}},
		},
		{
			data:        []byte{0x00},
			expectedErr: mc.ErrPacketTooShort,
		},
		{
			data:        mc.VarInt(mc.MaxPacketSize + 1).Encode(),
			expectedErr: mc.ErrPacketTooBig,
		},
	}

	for _, tc := range tt {
		pk, err := mc.ReadPacket(bufio.NewReader(bytes.NewReader(tc.data)))
		if !errors.Is(err, tc.expectedErr) {
			t.Errorf("expected error %v but got: %v", tc.expectedErr, err)
			continue
		}
		if err != nil {
			continue
		}
		if pk.ID != tc.expectedPacket.ID {
			t.Errorf("id: got: %v; want: %v", pk.ID, tc.expectedPacket.ID)
		}
		if !bytes.Equal(pk.Data, tc.expectedPacket.Data) {
			t.Errorf("data: got: %v; want: %v", pk.Data, tc.expectedPacket.Data)
		}
	}
}

func TestPacket_Scan(t *testing.T) {
	pk := mc.MarshalPacket(0x00, mc.VarInt(300), mc.String("slumber"), mc.Boolean(true))

	var (
		number mc.VarInt
		text   mc.String
		flag   mc.Boolean
	)
	if err := pk.Scan(&number, &text, &flag); err != nil {
		t.Fatal(err)
	}
	if number != 300 || text != "slumber" || !flag {
		t.Errorf("got %v %v %v", number, text, flag)
	}
}

func TestMcConn_ReadWritePacket(t *testing.T) {
	c1, c2 := net.Pipe()
	writer := mc.NewMcConn(c1)
	reader := mc.NewMcConn(c2)
	pk := mc.Packet{ID: 0x05, Data: []byte{0x01, 0x02}}

	errCh := make(chan error, 1)
	go func() {
		errCh <- writer.WritePacket(pk)
	}()

	received, err := reader.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if received.ID != pk.ID || !bytes.Equal(received.Data, pk.Data) {
		t.Errorf("got: %v; want: %v", received, pk)
	}
}

func TestServerBoundHandshake_Marshal(t *testing.T) {
	pk := mc.ServerBoundHandshake{
		ProtocolVersion: 578,
		ServerAddress:   "spook.space",
		ServerPort:      25565,
		NextState:       mc.StatusState,
	}.Marshal()

	expected := []byte{0xC2, 0x04, 0x0B, 0x73, 0x70, 0x6F, 0x6F, 0x6B, 0x2E, 0x73, 0x70, 0x61, 0x63, 0x65, 0x63, 0xDD, 0x01}
	if pk.ID != mc.ServerBoundHandshakePacketID {
		t.Error("invalid packet id")
	}
	if !bytes.Equal(pk.Data, expected) {
		t.Errorf("got: %v, want: %v", pk.Data, expected)
	}
}

func TestServerBoundHandshake_ParseServerAddress(t *testing.T) {
	tt := []struct {
		addr     string
		expected string
		forge    bool
	}{
		{addr: "example.com", expected: "example.com"},
		{addr: "example.com\x00FML2\x00", expected: "example.com", forge: true},
		{addr: "example.com///127.0.0.1:25565///1620000000", expected: "example.com"},
	}

	for _, tc := range tt {
		hs := mc.ServerBoundHandshake{ServerAddress: tc.addr}
		if got := hs.ParseServerAddress(); got != tc.expected {
			t.Errorf("got: %q; want: %q", got, tc.expected)
		}
		if hs.IsForgeAddress() != tc.forge {
			t.Errorf("%q forge: got %v", tc.addr, hs.IsForgeAddress())
		}
	}
}

func TestRequestState(t *testing.T) {
	tt := []struct {
		nextState int
		expected  mc.HandshakeState
	}{
		{nextState: mc.StatusState, expected: mc.Status},
		{nextState: mc.LoginState, expected: mc.Login},
		{nextState: mc.TransferState, expected: mc.Login},
		{nextState: 0, expected: mc.UnknownState},
		{nextState: 9, expected: mc.UnknownState},
	}

	for _, tc := range tt {
		if got := mc.RequestState(tc.nextState); got != tc.expected {
			t.Errorf("next state %d: got %v; want %v", tc.nextState, got, tc.expected)
		}
	}
}
