package mc

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	LegacyPingPacketID byte = 0xFE
	LegacyKickPacketID byte = 0xFF
)

// LegacyStatus is the answer for server list pings of clients older than
// 1.7, which do not speak the framed protocol.
type LegacyStatus struct {
	Protocol   int
	Version    string
	Motd       string
	Online     int
	MaxPlayers int
}

// Marshal encodes the kick packet those clients expect: 0xFF, the length in
// UTF-16 code units and the UTF-16BE encoded fields.
func (s LegacyStatus) Marshal() []byte {
	text := fmt.Sprintf("§1\x00%d\x00%s\x00%s\x00%d\x00%d", s.Protocol, s.Version, s.Motd, s.Online, s.MaxPlayers)
	units := utf16.Encode([]rune(text))

	bb := make([]byte, 3, 3+len(units)*2)
	bb[0] = LegacyKickPacketID
	binary.BigEndian.PutUint16(bb[1:3], uint16(len(units)))
	for _, u := range units {
		bb = append(bb, byte(u>>8), byte(u))
	}
	return bb
}
