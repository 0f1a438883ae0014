package module

import (
	"sync"
	"time"

	"github.com/realDragonium/Slumber/mc"
)

// StatusCache keeps the last status the real server answered with.
type StatusCache interface {
	// Refresh asks the server for its status.
	Refresh() (mc.ResponseJSON, error)
	// Last is the last status the server answered with.
	Last() (mc.ResponseJSON, bool)
}

func NewStatusCache(protocol int, timeout time.Duration, connCreator ConnectionCreator) StatusCache {
	handshake := mc.ServerBoundHandshake{
		ProtocolVersion: protocol,
		ServerAddress:   "Slumber",
		ServerPort:      25565,
		NextState:       mc.StatusState,
	}

	return &statusCache{
		connCreator: connCreator,
		timeout:     timeout,
		handshake:   handshake,
	}
}

type statusCache struct {
	connCreator ConnectionCreator
	timeout     time.Duration
	handshake   mc.ServerBoundHandshake

	mu     sync.Mutex
	status mc.ResponseJSON
	known  bool
}

func (cache *statusCache) Refresh() (mc.ResponseJSON, error) {
	status, err := cache.newStatus()
	if err != nil {
		return status, err
	}
	cache.mu.Lock()
	cache.status = status
	cache.known = true
	cache.mu.Unlock()
	return status, nil
}

func (cache *statusCache) Last() (mc.ResponseJSON, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.status, cache.known
}

func (cache *statusCache) newStatus() (mc.ResponseJSON, error) {
	var status mc.ResponseJSON
	conn, err := cache.connCreator.Conn()()
	if err != nil {
		return status, err
	}
	defer conn.Close()
	if cache.timeout > 0 {
		conn.SetDeadline(time.Now().Add(cache.timeout))
	}

	mcConn := mc.NewMcConn(conn)
	if err := mcConn.WritePacket(cache.handshake.Marshal()); err != nil {
		return status, err
	}
	if err := mcConn.WritePacket(mc.ServerBoundRequest{}.Marshal()); err != nil {
		return status, err
	}

	pk, err := mcConn.ReadPacket()
	if err != nil {
		return status, err
	}
	response, err := mc.UnmarshalClientBoundResponse(pk)
	if err != nil {
		return status, err
	}
	return response.Response()
}
