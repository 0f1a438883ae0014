package mc

import (
	"encoding/json"
	"time"
)

const (
	ClientBoundResponsePacketID byte = 0x00
	ServerBoundRequestPacketID  byte = 0x00
	ServerBoundPingPacketID     byte = 0x01
	ClientBoundPongPacketID     byte = 0x01
)

// SimpleStatus is the status Slumber answers with on behalf of the server.
type SimpleStatus struct {
	Name        string
	Protocol    int
	Description string
	Favicon     string
	MaxPlayers  int
	Online      int

	// RawDescription takes precedence over Description, used to pass the
	// description of the real server along as it is.
	RawDescription json.RawMessage
}

func (pk SimpleStatus) Marshal() Packet {
	description := pk.RawDescription
	if len(description) == 0 {
		description = json.RawMessage(TextComponent(pk.Description))
	}
	jsonResponse := ResponseJSON{
		Version: VersionJSON{
			Name:     pk.Name,
			Protocol: pk.Protocol,
		},
		Players: PlayersJSON{
			Max:    pk.MaxPlayers,
			Online: pk.Online,
		},
		Description: description,
		Favicon:     pk.Favicon,
	}
	text, _ := json.Marshal(jsonResponse)
	return ClientBoundResponse{
		JSONResponse: String(text),
	}.Marshal()
}

type ClientBoundResponse struct {
	JSONResponse String
}

func (pk ClientBoundResponse) Marshal() Packet {
	return MarshalPacket(
		ClientBoundResponsePacketID,
		pk.JSONResponse,
	)
}

func UnmarshalClientBoundResponse(packet Packet) (ClientBoundResponse, error) {
	var pk ClientBoundResponse

	if packet.ID != ClientBoundResponsePacketID {
		return pk, ErrInvalidPacketID
	}

	if err := packet.Scan(
		&pk.JSONResponse,
	); err != nil {
		return pk, err
	}

	return pk, nil
}

// Response parses the json of a status response.
func (pk ClientBoundResponse) Response() (ResponseJSON, error) {
	var resp ResponseJSON
	err := json.Unmarshal([]byte(pk.JSONResponse), &resp)
	return resp, err
}

type ResponseJSON struct {
	Version     VersionJSON     `json:"version"`
	Players     PlayersJSON     `json:"players"`
	Description json.RawMessage `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
}

type VersionJSON struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type PlayersJSON struct {
	Max    int                `json:"max"`
	Online int                `json:"online"`
	Sample []PlayerSampleJSON `json:"sample,omitempty"`
}

type PlayerSampleJSON struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type ServerBoundRequest struct{}

func (pk ServerBoundRequest) Marshal() Packet {
	return MarshalPacket(
		ServerBoundRequestPacketID,
	)
}

func NewServerBoundPing() ServerBoundPing {
	millisecondTime := time.Now().UnixNano() / 1e6
	return ServerBoundPing{
		Time: Long(millisecondTime),
	}
}

type ServerBoundPing struct {
	Time Long
}

func (pk ServerBoundPing) Marshal() Packet {
	return MarshalPacket(
		ServerBoundPingPacketID,
		pk.Time,
	)
}

func UnmarshalServerBoundPing(packet Packet) (ServerBoundPing, error) {
	var pk ServerBoundPing

	if packet.ID != ServerBoundPingPacketID {
		return pk, ErrInvalidPacketID
	}

	err := packet.Scan(&pk.Time)
	return pk, err
}

// ClientBoundPong echoes the payload of the ping.
type ClientBoundPong struct {
	Time Long
}

func (pk ClientBoundPong) Marshal() Packet {
	return MarshalPacket(
		ClientBoundPongPacketID,
		pk.Time,
	)
}
