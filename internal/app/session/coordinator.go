/*
Package session contains the core logic for pairing anonymous participants.

This file defines the Coordinator, the single owner of all session state: the
waiting queue, the room registry, the per-connection rate records, and the
published key store. Every inbound event is processed as one indivisible step
under the Coordinator's mutex, so matching, pairing, and dissolving can never
interleave. Outbound delivery is fire-and-forget and happens inside the same
step that resolved the recipient.
*/
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairchat/internal/metrics"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

// Emitter is the outbound side of one connection. Deliver must never block;
// implementations queue the envelope and drop it when the queue is full.
type Emitter interface {
	Deliver(env Envelope)
	Close()
}

// connState tracks where a connection sits in its lifecycle.
// A connection is in exactly one state at any instant.
type connState int

const (
	stateIdle connState = iota
	stateQueued
	statePaired
)

// member is the Coordinator's view of one active connection.
type member struct {
	emitter Emitter
	name    string
	avatar  string
	state   connState
}

// Coordinator serializes every state-mutating session event.
type Coordinator struct {
	mu      sync.Mutex
	members map[string]*member
	queue   *waitingQueue
	rooms   *roomRegistry
	limiter *messageLimiter
	keys    *keyStore

	closed bool
	logger zerolog.Logger
}

// NewCoordinator constructs a Coordinator with the given per-connection
// message rate limit (limit events per window).
func NewCoordinator(messageLimit int, messageWindow time.Duration) *Coordinator {
	coordinatorLogger := logx.Logger().With().Str("component", "Coordinator").Logger()

	return &Coordinator{
		members: make(map[string]*member),
		queue:   newWaitingQueue(),
		rooms:   newRoomRegistry(),
		limiter: newMessageLimiter(messageLimit, messageWindow),
		keys:    newKeyStore(),
		logger:  coordinatorLogger,
	}
}

// Register adds a newly accepted connection in the Idle state.
// Profile attributes are set later, on the first join_queue event.
func (c *Coordinator) Register(connID string, emitter Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		emitter.Close()
		return
	}

	c.members[connID] = &member{
		emitter: emitter,
		name:    DefaultDisplayName,
		state:   stateIdle,
	}

	c.logger.Info().Str("conn_id", connID).Int("total_connections", len(c.members)).Msg("Connection registered.")
	c.updateGauges()
}

// Dispatch processes one inbound event from a connection. Events from an
// unknown identity (never registered, or already cleaned up) are dropped.
func (c *Coordinator) Dispatch(connID string, env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if _, ok := c.members[connID]; !ok {
		c.logger.Warn().Str("conn_id", connID).Str("event", string(env.Event)).Msg("Event from unknown connection dropped.")
		return
	}

	switch env.Event {
	case EventJoinQueue:
		var payload JoinQueuePayload
		if !c.decode(connID, env, &payload) {
			return
		}
		c.handleJoinQueue(connID, payload)

	case EventExchangeKeys:
		var payload ExchangeKeysPayload
		if !c.decode(connID, env, &payload) {
			return
		}
		c.handleExchangeKeys(connID, payload)

	case EventSendMessage:
		var payload MessagePayload
		if !c.decode(connID, env, &payload) {
			return
		}
		c.handleSendMessage(connID, payload)

	case EventTyping, EventStopTyping:
		c.handleTyping(connID, env.Event)

	case EventEditMessage:
		var payload EditMessagePayload
		if !c.decode(connID, env, &payload) {
			return
		}
		c.handleEditMessage(connID, payload)

	case EventDeleteMessage:
		var payload DeleteMessagePayload
		if !c.decode(connID, env, &payload) {
			return
		}
		c.handleDeleteMessage(connID, payload)

	case EventSkip:
		c.handleSkip(connID)

	default:
		c.logger.Warn().Str("conn_id", connID).Str("event", string(env.Event)).Msg("Unsupported event type dropped.")
	}
}

// Disconnect performs full cleanup for a closed connection: queue membership,
// room mapping (both directions), rate record, key record, and the member
// entry itself. The identity is invalid afterwards; later events from it are
// dropped by Dispatch. Calling Disconnect twice is a no-op.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[connID]; !ok {
		return
	}

	c.queue.remove(connID)
	c.dissolvePairing(connID, true)
	c.limiter.forget(connID)
	c.keys.forget(connID)
	delete(c.members, connID)

	c.logger.Info().Str("conn_id", connID).Int("total_connections", len(c.members)).Msg("Connection cleaned up.")
	c.updateGauges()
}

// Shutdown closes every connection and stops accepting events.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for _, m := range c.members {
		m.emitter.Close()
	}

	c.members = make(map[string]*member)
	c.queue = newWaitingQueue()
	c.rooms = newRoomRegistry()
	c.updateGauges()

	c.logger.Info().Msg("Coordinator shutdown complete.")
}

// Stats returns a snapshot of connection, queue, and room counts.
func (c *Coordinator) Stats() (connections, queued, rooms int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.members), c.queue.size(), c.rooms.size()
}

// handleJoinQueue applies the matching policy: pair with the oldest waiting
// connection if one exists, otherwise enqueue the requester. A repeated
// join_queue from a Queued or Paired connection is ignored.
func (c *Coordinator) handleJoinQueue(connID string, payload JoinQueuePayload) {
	m := c.members[connID]
	if m.state != stateIdle {
		c.logger.Warn().Str("conn_id", connID).Msg("join_queue from non-idle connection ignored.")
		return
	}

	m.name = SanitizeDisplayName(payload.Username)
	m.avatar = payload.ProfilePic

	partnerID, ok := c.queue.dequeueOldest()
	if !ok {
		c.queue.enqueue(connID)
		m.state = stateQueued
		c.logger.Info().Str("conn_id", connID).Int("queue_depth", c.queue.size()).Msg("Connection enqueued.")
		c.updateGauges()
		return
	}

	partner := c.members[partnerID]
	rm, err := c.rooms.pair(connID, partnerID)
	if err != nil {
		// The queue never holds paired connections, so this indicates a bug.
		c.logger.Error().Err(err).Str("conn_id", connID).Str("partner_id", partnerID).Msg("Pairing failed.")
		c.queue.enqueue(connID)
		m.state = stateQueued
		c.updateGauges()
		return
	}

	m.state = statePaired
	partner.state = statePaired

	c.emit(connID, EventChatStart, ChatStartPayload{
		RoomID:            rm.id,
		PartnerName:       partner.name,
		PartnerProfilePic: partner.avatar,
	})
	c.emit(partnerID, EventChatStart, ChatStartPayload{
		RoomID:            rm.id,
		PartnerName:       m.name,
		PartnerProfilePic: m.avatar,
	})

	metrics.PairsFormed.Inc()
	c.logger.Info().Str("conn_id", connID).Str("partner_id", partnerID).Str("room_id", rm.id).Msg("Pair formed.")
	c.updateGauges()
}

// handleExchangeKeys stores the submitted key and, when paired, forwards it to
// the partner immediately. The key is kept for a later pairing but is not
// delivered retroactively; each side re-publishes after chat_start.
func (c *Coordinator) handleExchangeKeys(connID string, payload ExchangeKeysPayload) {
	if payload.PublicKey == "" {
		c.logger.Warn().Str("conn_id", connID).Msg("Empty key payload ignored.")
		return
	}

	c.keys.publish(connID, payload.PublicKey)

	partnerID, ok := c.rooms.partnerOf(connID)
	if !ok {
		return
	}

	c.emit(partnerID, EventPartnerPublicKey, PartnerPublicKeyPayload{PublicKey: payload.PublicKey})
}

// handleSendMessage relays a message to the partner after the rate check.
// A rejected message is reported to the sender only and never delivered.
func (c *Coordinator) handleSendMessage(connID string, payload MessagePayload) {
	m := c.members[connID]
	if m.state != statePaired {
		c.logger.Warn().Str("conn_id", connID).Msg("send_message from unpaired connection ignored.")
		return
	}

	if !c.limiter.admit(connID) {
		metrics.MessagesRateLimited.Inc()
		c.emit(connID, EventRateLimitExceeded, RateLimitExceededPayload{
			Message: "You are sending messages too quickly. Please slow down.",
		})
		return
	}

	partnerID, ok := c.rooms.partnerOf(connID)
	if !ok {
		// Room dissolved concurrently; drop silently.
		return
	}

	payload.RoomID = ""
	payload.Sender = "other"
	if payload.ID == "" {
		payload.ID = randx.MessageID()
	}
	if payload.Type == "" {
		payload.Type = MessageTypeText
	}

	c.emit(partnerID, EventReceiveMessage, payload)
	metrics.MessagesRelayed.Inc()
}

// handleTyping relays typing and stop_typing signals with no persistence and
// no rate limiting. A signal from an unpaired connection is a no-op.
func (c *Coordinator) handleTyping(connID string, event EventType) {
	partnerID, ok := c.rooms.partnerOf(connID)
	if !ok {
		return
	}

	c.emit(partnerID, event, nil)
}

// handleEditMessage relays an edit to the partner by message identity.
// The server does not verify that the sender authored the referenced message;
// only the current partner can act on the identity.
func (c *Coordinator) handleEditMessage(connID string, payload EditMessagePayload) {
	partnerID, ok := c.rooms.partnerOf(connID)
	if !ok {
		return
	}

	c.emit(partnerID, EventMessageEdited, MessageEditedPayload{ID: payload.ID, Text: payload.Text})
}

// handleDeleteMessage relays a deletion marker to the partner.
func (c *Coordinator) handleDeleteMessage(connID string, payload DeleteMessagePayload) {
	partnerID, ok := c.rooms.partnerOf(connID)
	if !ok {
		return
	}

	c.emit(partnerID, EventMessageDeleted, MessageDeletedPayload{ID: payload.ID})
}

// handleSkip returns the connection to Idle. While queued it is simply removed;
// while paired the room is dissolved and the remaining side notified. The
// initiator may immediately re-join the queue.
func (c *Coordinator) handleSkip(connID string) {
	m := c.members[connID]

	switch m.state {
	case stateQueued:
		c.queue.remove(connID)
		m.state = stateIdle

	case statePaired:
		c.dissolvePairing(connID, true)
		m.state = stateIdle

	default:
		c.logger.Warn().Str("conn_id", connID).Msg("skip from idle connection ignored.")
	}

	c.updateGauges()
}

// dissolvePairing removes the room mapping for both members and optionally
// notifies the remaining side. Safe to call for unpaired connections.
func (c *Coordinator) dissolvePairing(connID string, notifyPartner bool) {
	partnerID, ok := c.rooms.dissolve(connID)
	if !ok {
		return
	}

	if partner, exists := c.members[partnerID]; exists {
		partner.state = stateIdle
		if notifyPartner {
			c.emit(partnerID, EventPartnerDisconnected, nil)
		}
	}
}

// decode unmarshals the envelope payload, logging and dropping malformed input.
func (c *Coordinator) decode(connID string, env Envelope, dst any) bool {
	if len(env.Data) == 0 {
		// Treat a missing payload as the zero value; defaults substitute later.
		return true
	}

	if err := json.Unmarshal(env.Data, dst); err != nil {
		c.logger.Warn().Err(err).Str("conn_id", connID).Str("event", string(env.Event)).Msg("Malformed event payload dropped.")
		return false
	}

	return true
}

// emit delivers an outbound event to a connection, if it still exists.
// Delivery is fire-and-forget relative to the Coordinator.
func (c *Coordinator) emit(connID string, event EventType, data any) {
	m, ok := c.members[connID]
	if !ok {
		return
	}

	env, err := NewEnvelope(event, data)
	if err != nil {
		c.logger.Error().Err(err).Str("conn_id", connID).Str("event", string(event)).Msg("Failed to build outbound envelope.")
		return
	}

	m.emitter.Deliver(env)
}

// updateGauges refreshes the session gauges after a state change.
func (c *Coordinator) updateGauges() {
	metrics.ActiveConnections.Set(float64(len(c.members)))
	metrics.QueueDepth.Set(float64(c.queue.size()))
	metrics.ActiveRooms.Set(float64(c.rooms.size()))
}
