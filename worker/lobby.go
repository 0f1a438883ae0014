package worker

import (
	"bufio"
	"crypto/md5"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/realDragonium/Slumber/core"
	"github.com/realDragonium/Slumber/mc"
	log "github.com/sirupsen/logrus"
)

var (
	lobbyKeepAliveInterval = 10 * time.Second
	lobbySpawnY            = 64

	errLobbyClientGone   = errors.New("lobby client disconnected")
	errLobbyUnsupported  = errors.New("server asked for compression or encryption")
	lobbyReconnectReason = "Server is ready, please reconnect."
)

// OfflineUUID is the uuid a server in offline mode gives a player.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}

// LobbyCompatible reports whether the lobby can be played with this client.
func LobbyCompatible(req core.RequestData, forge bool) bool {
	_, ok := mc.LobbyProtocols[req.Handshake.ProtocolVersion]
	return ok && !forge && !req.Forge
}

// lobby logs the client into an empty world and keeps it there until the
// server runs, then logs it into the real server in the background and
// connects the two.
func (d *Dispatcher) lobby(watch *clientWatch, conn net.Conn, reader *bufio.Reader, req core.RequestData, method core.JoinMethod) (bool, error) {
	if !LobbyCompatible(req, d.forge) {
		return false, nil
	}
	watch.stop()
	defer conn.Close()

	client := mc.NewMcConnWithReader(conn, reader)
	if err := sendLobby(client, req, method); err != nil {
		return true, err
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, err := mc.ReadPacket(reader); err != nil {
				return
			}
		}
	}()
	stopReading := func() {
		conn.SetReadDeadline(time.Now())
		<-gone
		conn.SetReadDeadline(time.Time{})
	}

	err := d.lobbyWait(client, gone, method)
	if errors.Is(err, errLobbyClientGone) {
		return true, core.ErrClientClosedConn
	}
	if err != nil {
		client.WritePacket(mc.ClientBoundPlayDisconnect{
			Reason: mc.TextComponent(kickMessage(d.server.State(), method)),
		}.Marshal())
		return true, err
	}

	stopReading()
	return true, d.lobbyHandoff(conn, reader, client, req, method)
}

func sendLobby(client mc.McConn, req core.RequestData, method core.JoinMethod) error {
	joinGame, err := mc.LobbyJoinGame{EntityID: 0, MaxPlayers: 20}.Marshal()
	if err != nil {
		return err
	}
	packets := []mc.Packet{
		mc.ClientBoundLoginSuccess{
			UUID:     mc.UUID(OfflineUUID(req.Username)),
			Username: mc.String(req.Username),
		}.Marshal(),
		joinGame,
		mc.ClientBoundSpawnPosition{X: 0, Y: lobbySpawnY, Z: 0}.Marshal(),
		mc.ClientBoundPlayerPositionAndLook{X: 0.5, Y: mc.Double(lobbySpawnY), Z: 0.5}.Marshal(),
		mc.ClientBoundTimeUpdate{WorldAge: 0, TimeOfDay: -18000}.Marshal(),
	}
	if method.LobbyMessage != "" {
		packets = append(packets, mc.ClientBoundChatMessage{
			Message:  mc.TextComponent(method.LobbyMessage),
			Position: mc.ChatPositionSystem,
		}.Marshal())
	}
	for _, pk := range packets {
		if err := client.WritePacket(pk); err != nil {
			return err
		}
	}
	return nil
}

// lobbyWait keeps the client alive until the server is running.
func (d *Dispatcher) lobbyWait(client mc.McConn, gone <-chan struct{}, method core.JoinMethod) error {
	deadline := time.NewTimer(method.Timeout)
	defer deadline.Stop()
	keepAlive := time.NewTicker(lobbyKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		notify := d.server.Subscribe()
		switch d.server.State() {
		case core.Running:
			return nil
		case core.Sleeping:
			if failure := d.server.Failure(); failure != nil {
				return failure
			}
			if !d.server.Wake() && d.server.State() == core.Sleeping {
				return core.ErrNotRunning
			}
		}

		select {
		case <-notify:
		case <-gone:
			return errLobbyClientGone
		case <-deadline.C:
			return core.ErrStartTimeout
		case now := <-keepAlive.C:
			pk := mc.ClientBoundKeepAlive{ID: mc.Long(now.UnixNano())}.Marshal()
			if err := client.WritePacket(pk); err != nil {
				return errLobbyClientGone
			}
		}
	}
}

// lobbyHandoff logs in at the real server with the bytes the client sent,
// the server's login success is swallowed as the client is already in the
// play state.
func (d *Dispatcher) lobbyHandoff(conn net.Conn, reader *bufio.Reader, client mc.McConn, req core.RequestData, method core.JoinMethod) error {
	server, err := d.upstream.Dial(req)
	if err != nil {
		kickPlay(client, kickMessage(core.Starting, method))
		return err
	}
	if _, err := server.Write(req.Replay()); err != nil {
		server.Close()
		kickPlay(client, kickMessage(core.Starting, method))
		return fmt.Errorf("%w: replaying login: %v", core.ErrUpstreamConnect, err)
	}

	serverReader := bufio.NewReader(server)
	if err := awaitLoginSuccess(server, serverReader, client); err != nil {
		server.Close()
		return err
	}

	if method.ReadySound != "" {
		client.WritePacket(mc.ClientBoundNamedSoundEffect{
			Sound:    mc.Identifier(method.ReadySound),
			Category: mc.SoundCategoryMaster,
			X:        0.5,
			Y:        mc.Double(lobbySpawnY),
			Z:        0.5,
			Volume:   1,
			Pitch:    1,
		}.Marshal())
	}

	// the first packet the server sends now is its join game, the client
	// treats it as a world change
	d.server.ConnOpened()
	defer d.server.ConnClosed()
	log.Infof("moving %s from the lobby to the server", req.Username)
	return Relay(conn, reader, server, serverReader)
}

func awaitLoginSuccess(server net.Conn, serverReader *bufio.Reader, client mc.McConn) error {
	server.SetReadDeadline(time.Now().Add(30 * time.Second))
	defer server.SetReadDeadline(time.Time{})
	for {
		pk, err := mc.ReadPacket(serverReader)
		if err != nil {
			kickPlay(client, lobbyReconnectReason)
			return fmt.Errorf("%w: reading login response: %v", core.ErrUpstreamConnect, err)
		}
		switch pk.ID {
		case mc.ClientBoundLoginSuccessPacketID:
			return nil
		case mc.ClientBoundLoginDisconnectPacketID:
			disconnect, err := mc.UnmarshalClientDisconnect(pk)
			if err != nil {
				kickPlay(client, lobbyReconnectReason)
				return err
			}
			client.WritePacket(mc.ClientBoundPlayDisconnect{Reason: disconnect.Reason}.Marshal())
			return fmt.Errorf("server refused the login: %s", mc.PlainText([]byte(disconnect.Reason)))
		case mc.ClientBoundSetCompressionPacketID, mc.ClientBoundEncryptionRequestID:
			kickPlay(client, lobbyReconnectReason)
			return errLobbyUnsupported
		default:
			kickPlay(client, lobbyReconnectReason)
			return fmt.Errorf("unexpected login packet 0x%02x from server", pk.ID)
		}
	}
}

func kickPlay(client mc.McConn, message string) {
	client.WritePacket(mc.ClientBoundPlayDisconnect{Reason: mc.TextComponent(message)}.Marshal())
}
