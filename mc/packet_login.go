package mc

import (
	"strings"
)

//go:generate stringer -type=HandshakeState
type HandshakeState byte

const (
	UnknownState HandshakeState = iota
	Status
	Login
)

func (state HandshakeState) String() string {
	var text string
	switch state {
	case UnknownState:
		text = "Unknown"
	case Status:
		text = "Status"
	case Login:
		text = "Login"
	}
	return text
}

// RequestState maps the next state of a handshake onto what the client
// wants from us. Transfers are logins as far as the proxy is concerned.
func RequestState(n int) HandshakeState {
	var t HandshakeState
	switch n {
	case StatusState:
		t = Status
	case LoginState, TransferState:
		t = Login
	default:
		t = UnknownState
	}
	return t
}

type McTypesHandshake struct {
	ProtocolVersion VarInt
	ServerAddress   String
	ServerPort      UnsignedShort
	NextState       VarInt
}

type ServerBoundHandshake struct {
	ProtocolVersion int
	ServerAddress   string
	ServerPort      uint16
	NextState       int
}

func (pk ServerBoundHandshake) Marshal() Packet {
	return MarshalPacket(
		ServerBoundHandshakePacketID,
		VarInt(pk.ProtocolVersion),
		String(pk.ServerAddress),
		UnsignedShort(pk.ServerPort),
		VarInt(pk.NextState),
	)
}

func UnmarshalServerBoundHandshake(packet Packet) (ServerBoundHandshake, error) {
	var pk McTypesHandshake
	var hs ServerBoundHandshake

	if packet.ID != ServerBoundHandshakePacketID {
		return hs, ErrInvalidPacketID
	}

	if err := packet.Scan(
		&pk.ProtocolVersion,
		&pk.ServerAddress,
		&pk.ServerPort,
		&pk.NextState,
	); err != nil {
		return hs, err
	}
	hs = ServerBoundHandshake{
		ProtocolVersion: int(pk.ProtocolVersion),
		ServerAddress:   string(pk.ServerAddress),
		ServerPort:      uint16(pk.ServerPort),
		NextState:       int(pk.NextState),
	}
	return hs, nil
}

func (pk ServerBoundHandshake) IsStatusRequest() bool {
	return VarInt(pk.NextState) == HandshakeStatusState
}

func (pk ServerBoundHandshake) IsForgeAddress() bool {
	addr := string(pk.ServerAddress)
	return len(strings.Split(addr, ForgeSeparator)) > 1
}

func (pk ServerBoundHandshake) ParseServerAddress() string {
	addr := string(pk.ServerAddress)
	addr = strings.Split(addr, ForgeSeparator)[0]
	addr = strings.Split(addr, RealIPSeparator)[0]
	return addr
}

const (
	ServerBoundLoginStartPacketID      byte = 0x00
	ClientBoundLoginDisconnectPacketID byte = 0x00
	ClientBoundEncryptionRequestID     byte = 0x01
	ClientBoundLoginSuccessPacketID    byte = 0x02
	ClientBoundSetCompressionPacketID  byte = 0x03
	ClientBoundLoginPluginRequestID    byte = 0x04

	MaxUsernameLength = 16
)

type ServerLoginStart struct {
	Name String
}

func (pk ServerLoginStart) Marshal() Packet {
	return MarshalPacket(ServerBoundLoginStartPacketID, pk.Name)
}

// UnmarshalServerBoundLoginStart only looks at the name, anything newer
// versions append after it (signature data, uuid) is left alone.
func UnmarshalServerBoundLoginStart(packet Packet) (ServerLoginStart, error) {
	var pk ServerLoginStart

	if packet.ID != ServerBoundLoginStartPacketID {
		return pk, ErrInvalidPacketID
	}

	if err := packet.Scan(&pk.Name); err != nil {
		return pk, err
	}
	if len(pk.Name) > MaxUsernameLength*4 {
		return pk, ErrStringTooLong
	}

	return pk, nil
}

// ClientBoundDisconnect is the disconnect packet of the login state.
type ClientBoundDisconnect struct {
	Reason Chat
}

func (pk ClientBoundDisconnect) Marshal() Packet {
	return MarshalPacket(
		ClientBoundLoginDisconnectPacketID,
		pk.Reason,
	)
}

func UnmarshalClientDisconnect(packet Packet) (ClientBoundDisconnect, error) {
	var pk ClientBoundDisconnect

	if packet.ID != ClientBoundLoginDisconnectPacketID {
		return pk, ErrInvalidPacketID
	}

	err := packet.Scan(&pk.Reason)
	return pk, err
}

// NewDisconnect builds a login disconnect packet from plain (section sign
// formatted) text.
func NewDisconnect(text string) Packet {
	return ClientBoundDisconnect{
		Reason: TextComponent(text),
	}.Marshal()
}

// ClientBoundLoginSuccess is the 1.16 - 1.18 layout.
type ClientBoundLoginSuccess struct {
	UUID     UUID
	Username String
}

func (pk ClientBoundLoginSuccess) Marshal() Packet {
	return MarshalPacket(
		ClientBoundLoginSuccessPacketID,
		pk.UUID,
		pk.Username,
	)
}

func UnmarshalClientBoundLoginSuccess(packet Packet) (ClientBoundLoginSuccess, error) {
	var pk ClientBoundLoginSuccess

	if packet.ID != ClientBoundLoginSuccessPacketID {
		return pk, ErrInvalidPacketID
	}

	err := packet.Scan(&pk.UUID, &pk.Username)
	return pk, err
}
