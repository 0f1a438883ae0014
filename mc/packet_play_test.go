package mc_test

import (
	"bytes"
	"testing"

	"github.com/Tnze/go-mc/nbt"
	"github.com/google/go-cmp/cmp"
	"github.com/realDragonium/Slumber/mc"
)

type testDimension struct {
	HasSkylight uint8  `nbt:"has_skylight"`
	Effects     string `nbt:"effects"`
	Height      int32  `nbt:"height"`
}

type testDimensionCodec struct {
	DimensionTypes struct {
		Value []struct {
			Name    string        `nbt:"name"`
			Element testDimension `nbt:"element"`
		} `nbt:"value"`
	} `nbt:"minecraft:dimension_type"`
}

func TestLobbyJoinGame_Marshal(t *testing.T) {
	pk, err := mc.LobbyJoinGame{EntityID: 7, MaxPlayers: 20}.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if pk.ID != mc.ClientBoundJoinGamePacketID {
		t.Fatalf("expected id 0x%02x but got 0x%02x", mc.ClientBoundJoinGamePacketID, pk.ID)
	}

	r := bytes.NewReader(pk.Data)
	var (
		entityID     mc.Int
		hardcore     mc.Boolean
		gamemode     mc.UnsignedByte
		prevGamemode mc.Byte
		worldCount   mc.VarInt
		worldName    mc.Identifier
	)
	if err := mc.ScanFields(r, &entityID, &hardcore, &gamemode, &prevGamemode, &worldCount, &worldName); err != nil {
		t.Fatal(err)
	}
	if entityID != 7 || worldCount != 1 || worldName != mc.LobbyWorldName {
		t.Errorf("unexpected header: entity %d, worlds %d, name %q", entityID, worldCount, worldName)
	}

	var codec testDimensionCodec
	if _, err := nbt.NewDecoder(r).Decode(&codec); err != nil {
		t.Fatalf("dimension codec: %v", err)
	}
	if len(codec.DimensionTypes.Value) != 1 || codec.DimensionTypes.Value[0].Name != mc.LobbyDimension {
		t.Fatalf("unexpected dimension types: %+v", codec.DimensionTypes.Value)
	}

	var dimension testDimension
	if _, err := nbt.NewDecoder(r).Decode(&dimension); err != nil {
		t.Fatalf("dimension: %v", err)
	}
	if diff := cmp.Diff(codec.DimensionTypes.Value[0].Element, dimension); diff != "" {
		t.Errorf("dimension differs from the codec entry (-codec +dimension):\n%s", diff)
	}
	if dimension.Height != 256 {
		t.Errorf("expected height 256 but got %d", dimension.Height)
	}

	var (
		name       mc.Identifier
		seed       mc.Long
		maxPlayers mc.VarInt
	)
	if err := mc.ScanFields(r, &name, &seed, &maxPlayers); err != nil {
		t.Fatal(err)
	}
	if maxPlayers != 20 {
		t.Errorf("expected 20 max players but got %d", maxPlayers)
	}
}
