package mc

import (
	"github.com/Tnze/go-mc/nbt"
)

// Play state packet ids of 1.17 and 1.17.1, the versions the lobby speaks.
const (
	ClientBoundChatMessagePacketID      byte = 0x0F
	ClientBoundNamedSoundEffectPacketID byte = 0x19
	ClientBoundPlayDisconnectPacketID   byte = 0x1A
	ClientBoundKeepAlivePacketID        byte = 0x21
	ClientBoundJoinGamePacketID         byte = 0x26
	ClientBoundPlayerPosLookPacketID    byte = 0x38
	ClientBoundSpawnPositionPacketID    byte = 0x4B
	ClientBoundTimeUpdatePacketID       byte = 0x58

	ServerBoundKeepAlivePacketID byte = 0x0F
)

// LobbyProtocols are the protocol versions the lobby packets are valid for.
var LobbyProtocols = map[int]string{
	755: "1.17",
	756: "1.17.1",
}

const (
	LobbyDimension = "minecraft:the_end"
	LobbyWorldName = "slumber:lobby"
	lobbyBiome     = "minecraft:the_void"
)

type dimensionType struct {
	PiglinSafe         uint8   `nbt:"piglin_safe"`
	Natural            uint8   `nbt:"natural"`
	AmbientLight       float32 `nbt:"ambient_light"`
	Infiniburn         string  `nbt:"infiniburn"`
	RespawnAnchorWorks uint8   `nbt:"respawn_anchor_works"`
	HasSkylight        uint8   `nbt:"has_skylight"`
	BedWorks           uint8   `nbt:"bed_works"`
	Effects            string  `nbt:"effects"`
	HasRaids           uint8   `nbt:"has_raids"`
	MinY               int32   `nbt:"min_y"`
	Height             int32   `nbt:"height"`
	LogicalHeight      int32   `nbt:"logical_height"`
	CoordinateScale    float64 `nbt:"coordinate_scale"`
	Ultrawarm          uint8   `nbt:"ultrawarm"`
	HasCeiling         uint8   `nbt:"has_ceiling"`
}

type dimensionTypeEntry struct {
	Name    string        `nbt:"name"`
	ID      int32         `nbt:"id"`
	Element dimensionType `nbt:"element"`
}

type moodSound struct {
	TickDelay         int32   `nbt:"tick_delay"`
	Offset            float64 `nbt:"offset"`
	Sound             string  `nbt:"sound"`
	BlockSearchExtent int32   `nbt:"block_search_extent"`
}

type biomeEffects struct {
	SkyColor      int32     `nbt:"sky_color"`
	WaterFogColor int32     `nbt:"water_fog_color"`
	FogColor      int32     `nbt:"fog_color"`
	WaterColor    int32     `nbt:"water_color"`
	MoodSound     moodSound `nbt:"mood_sound"`
}

type biome struct {
	Precipitation string       `nbt:"precipitation"`
	Depth         float32      `nbt:"depth"`
	Temperature   float32      `nbt:"temperature"`
	Scale         float32      `nbt:"scale"`
	Downfall      float32      `nbt:"downfall"`
	Category      string       `nbt:"category"`
	Effects       biomeEffects `nbt:"effects"`
}

type biomeEntry struct {
	Name    string `nbt:"name"`
	ID      int32  `nbt:"id"`
	Element biome  `nbt:"element"`
}

type dimensionTypeRegistry struct {
	Type  string               `nbt:"type"`
	Value []dimensionTypeEntry `nbt:"value"`
}

type biomeRegistry struct {
	Type  string       `nbt:"type"`
	Value []biomeEntry `nbt:"value"`
}

type dimensionCodec struct {
	DimensionTypes dimensionTypeRegistry `nbt:"minecraft:dimension_type"`
	Biomes         biomeRegistry         `nbt:"minecraft:worldgen/biome"`
}

func lobbyDimensionType() dimensionType {
	return dimensionType{
		AmbientLight:    0,
		Infiniburn:      "minecraft:infiniburn_end",
		Effects:         LobbyDimension,
		MinY:            0,
		Height:          256,
		LogicalHeight:   256,
		CoordinateScale: 1,
	}
}

func lobbyDimensionCodec() dimensionCodec {
	return dimensionCodec{
		DimensionTypes: dimensionTypeRegistry{
			Type: "minecraft:dimension_type",
			Value: []dimensionTypeEntry{{
				Name:    LobbyDimension,
				ID:      0,
				Element: lobbyDimensionType(),
			}},
		},
		Biomes: biomeRegistry{
			Type: "minecraft:worldgen/biome",
			Value: []biomeEntry{{
				Name: lobbyBiome,
				ID:   0,
				Element: biome{
					Precipitation: "none",
					Depth:         0.1,
					Temperature:   0.5,
					Scale:         0.2,
					Downfall:      0.5,
					Category:      "none",
					Effects: biomeEffects{
						SkyColor:      0,
						WaterFogColor: 329011,
						FogColor:      0,
						WaterColor:    4159204,
						MoodSound: moodSound{
							TickDelay:         6000,
							Offset:            2,
							Sound:             "minecraft:ambient.cave",
							BlockSearchExtent: 8,
						},
					},
				},
			}},
		},
	}
}

// LobbyJoinGame places the player in an empty end-like world.
type LobbyJoinGame struct {
	EntityID   Int
	MaxPlayers VarInt
}

func (pk LobbyJoinGame) Marshal() (Packet, error) {
	codec, err := nbt.Marshal(lobbyDimensionCodec())
	if err != nil {
		return Packet{}, err
	}
	dimension, err := nbt.Marshal(lobbyDimensionType())
	if err != nil {
		return Packet{}, err
	}
	return MarshalPacket(
		ClientBoundJoinGamePacketID,
		pk.EntityID,
		Boolean(false),  // hardcore
		UnsignedByte(3), // spectator
		Byte(-1),        // no previous gamemode
		VarInt(1),       // world count
		Identifier(LobbyWorldName),
		RawBytes(codec),
		RawBytes(dimension),
		Identifier(LobbyWorldName),
		Long(0), // hashed seed
		pk.MaxPlayers,
		VarInt(2),      // view distance
		Boolean(true),  // reduced debug info
		Boolean(false), // respawn screen
		Boolean(false), // debug world
		Boolean(true),  // flat world
	), nil
}

type ClientBoundKeepAlive struct {
	ID Long
}

func (pk ClientBoundKeepAlive) Marshal() Packet {
	return MarshalPacket(ClientBoundKeepAlivePacketID, pk.ID)
}

type ClientBoundPlayerPositionAndLook struct {
	X, Y, Z    Double
	Yaw, Pitch Float
	TeleportID VarInt
}

func (pk ClientBoundPlayerPositionAndLook) Marshal() Packet {
	return MarshalPacket(
		ClientBoundPlayerPosLookPacketID,
		pk.X, pk.Y, pk.Z,
		pk.Yaw, pk.Pitch,
		Byte(0), // absolute positions
		pk.TeleportID,
		Boolean(false), // dismount vehicle
	)
}

type ClientBoundSpawnPosition struct {
	X, Y, Z int
	Angle   Float
}

func (pk ClientBoundSpawnPosition) Marshal() Packet {
	location := (int64(pk.X)&0x3FFFFFF)<<38 | (int64(pk.Z)&0x3FFFFFF)<<12 | int64(pk.Y)&0xFFF
	return MarshalPacket(
		ClientBoundSpawnPositionPacketID,
		Long(location),
		pk.Angle,
	)
}

// Chat positions
const (
	ChatPositionChat   Byte = 0
	ChatPositionSystem Byte = 1
	ChatPositionHotbar Byte = 2
)

type ClientBoundChatMessage struct {
	Message  Chat
	Position Byte
	Sender   UUID
}

func (pk ClientBoundChatMessage) Marshal() Packet {
	return MarshalPacket(
		ClientBoundChatMessagePacketID,
		pk.Message,
		pk.Position,
		pk.Sender,
	)
}

type ClientBoundPlayDisconnect struct {
	Reason Chat
}

func (pk ClientBoundPlayDisconnect) Marshal() Packet {
	return MarshalPacket(ClientBoundPlayDisconnectPacketID, pk.Reason)
}

// Sound category of named sound effects, 0 is master.
const SoundCategoryMaster VarInt = 0

type ClientBoundNamedSoundEffect struct {
	Sound    Identifier
	Category VarInt
	X, Y, Z  Double
	Volume   Float
	Pitch    Float
}

func (pk ClientBoundNamedSoundEffect) Marshal() Packet {
	return MarshalPacket(
		ClientBoundNamedSoundEffectPacketID,
		pk.Sound,
		pk.Category,
		Int(pk.X*8), Int(pk.Y*8), Int(pk.Z*8),
		pk.Volume,
		pk.Pitch,
	)
}

type ClientBoundTimeUpdate struct {
	WorldAge  Long
	TimeOfDay Long
}

func (pk ClientBoundTimeUpdate) Marshal() Packet {
	return MarshalPacket(ClientBoundTimeUpdatePacketID, pk.WorldAge, pk.TimeOfDay)
}
