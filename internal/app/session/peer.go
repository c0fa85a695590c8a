/*
Package session contains the core logic for pairing anonymous participants.

This file defines the Peer struct, representing an active WebSocket connection.
It manages the connection's read and write pumps, heartbeats, and the buffered
send queue through which the Coordinator delivers outbound events.
*/
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// capacity of the per-peer outbound queue.
	sendQueueSize = 256
)

// Peer struct represents an active WebSocket connection and its server-assigned identity.
type Peer struct {
	// server-assigned opaque identifier, stable for the lifetime of the session.
	id string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// the coordinator receiving this peer's inbound events.
	coord *Coordinator

	// a buffered channel used to queue envelopes waiting to be sent to the client.
	send chan []byte

	// maximum allowed size (in bytes) of a single inbound frame.
	maxFrameBytes int64

	// closeOnce guards closing the send channel.
	closeOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewPeer constructs a Peer around an upgraded WebSocket connection.
func NewPeer(coord *Coordinator, wsConn *websocket.Conn, maxFrameBytes int64) *Peer {
	id := randx.ConnectionID()

	peerLogger := logx.Logger().With().
		Str("conn_id", id).
		Logger()

	return &Peer{
		id:            id,
		conn:          wsConn,
		coord:         coord,
		send:          make(chan []byte, sendQueueSize),
		maxFrameBytes: maxFrameBytes,
		logger:        peerLogger,
	}
}

// ID returns the peer's server-assigned connection identifier.
func (p *Peer) ID() string {
	return p.id
}

// Deliver queues an outbound envelope for the write pump. It never blocks:
// when the queue is full the envelope is dropped and logged.
func (p *Peer) Deliver(env Envelope) {
	messageBytes, err := json.Marshal(env)
	if err != nil {
		p.logger.Error().Err(err).Str("event", string(env.Event)).Msg("Error marshaling envelope for client")
		return
	}

	select {
	case p.send <- messageBytes:
	default:
		p.logger.Warn().Int("queue_len", len(p.send)).Str("event", string(env.Event)).Msg("Peer send channel full, dropping event")
	}
}

// Close shuts down the peer's outbound queue, which terminates the write pump
// and closes the underlying connection.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.send)
	})
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), envelope parsing, and performs cleanup upon connection closure.
func (p *Peer) ReadPump() {
	defer p.cleanupOnDisconnect()

	p.conn.SetReadLimit(p.maxFrameBytes)

	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(messageBytes, &env); err != nil {
			p.logger.Warn().Err(err).Msg("Client sent invalid JSON frame")
			continue
		}

		p.coord.Dispatch(p.id, env)
	}
}

// cleanupOnDisconnect runs when the read pump terminates: the coordinator
// discards all state for this identity and the transport is closed.
func (p *Peer) cleanupOnDisconnect() {
	p.logger.Info().Msg("Peer connection cleanup starting.")

	p.coord.Disconnect(p.id)
	p.Close()

	if err := p.conn.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("Peer connection close error")
	}
}

// WritePump handles writing queued envelopes to the WebSocket connection and
// maintains the ping heartbeat.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := p.conn.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Peer connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-p.send:
			if !p.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !p.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one queued frame to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (p *Peer) writeQueuedMessage(message []byte, ok bool) bool {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := p.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			p.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		p.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (p *Peer) writePingMessage() bool {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		p.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		p.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
