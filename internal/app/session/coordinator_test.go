package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmitter records everything the coordinator delivers to one connection.
type fakeEmitter struct {
	mu     sync.Mutex
	events []Envelope
	closed bool
}

func (f *fakeEmitter) Deliver(env Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, env)
}

func (f *fakeEmitter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeEmitter) byType(event EventType) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []Envelope
	for _, env := range f.events {
		if env.Event == event {
			matched = append(matched, env)
		}
	}
	return matched
}

func (f *fakeEmitter) count(event EventType) int {
	return len(f.byType(event))
}

func (f *fakeEmitter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeClock) {
	t.Helper()

	c := NewCoordinator(10, time.Second)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c.limiter.now = clock.now
	return c, clock
}

func connect(t *testing.T, c *Coordinator, connID string) *fakeEmitter {
	t.Helper()

	em := &fakeEmitter{}
	c.Register(connID, em)
	return em
}

func inbound(t *testing.T, event EventType, data any) Envelope {
	t.Helper()

	env, err := NewEnvelope(event, data)
	require.NoError(t, err)
	return env
}

func decodeData[T any](t *testing.T, env Envelope) T {
	t.Helper()

	var payload T
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload
}

func joinQueue(t *testing.T, c *Coordinator, connID, username string) {
	t.Helper()
	c.Dispatch(connID, inbound(t, EventJoinQueue, JoinQueuePayload{Username: username}))
}

func TestJoinQueueEnqueuesFirstArrival(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")

	joinQueue(t, c, "A", "alice")

	connections, queued, rooms := c.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 1, queued)
	assert.Equal(t, 0, rooms)
	assert.Zero(t, emA.count(EventChatStart))
}

func TestSecondArrivalPairsImmediately(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	_, queued, rooms := c.Stats()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 1, rooms)

	startA := emA.byType(EventChatStart)
	require.Len(t, startA, 1)
	payloadA := decodeData[ChatStartPayload](t, startA[0])
	assert.Equal(t, "bob", payloadA.PartnerName)
	assert.NotEmpty(t, payloadA.RoomID)

	startB := emB.byType(EventChatStart)
	require.Len(t, startB, 1)
	payloadB := decodeData[ChatStartPayload](t, startB[0])
	assert.Equal(t, "alice", payloadB.PartnerName)
	assert.Equal(t, payloadA.RoomID, payloadB.RoomID)
}

func TestPairingIsFIFO(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")
	emC := connect(t, c, "C")
	connect(t, c, "D")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")
	joinQueue(t, c, "C", "carol")
	joinQueue(t, c, "D", "dave")

	// A+B first, then C+D.
	payloadA := decodeData[ChatStartPayload](t, emA.byType(EventChatStart)[0])
	assert.Equal(t, "bob", payloadA.PartnerName)
	payloadB := decodeData[ChatStartPayload](t, emB.byType(EventChatStart)[0])
	assert.Equal(t, "alice", payloadB.PartnerName)
	payloadC := decodeData[ChatStartPayload](t, emC.byType(EventChatStart)[0])
	assert.Equal(t, "dave", payloadC.PartnerName)
}

func TestRepeatedJoinQueueIgnored(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "A", "alice")

	_, queued, _ := c.Stats()
	assert.Equal(t, 1, queued, "a queued connection repeating join_queue must not be enqueued twice")

	emB := connect(t, c, "B")
	joinQueue(t, c, "B", "bob")

	// A is now paired; another join_queue from A must not re-enter the queue.
	joinQueue(t, c, "A", "alice")
	_, queued, rooms := c.Stats()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, emB.count(EventChatStart))
}

func TestJoinQueueSanitizesDisplayName(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "<script>x</script>")
	joinQueue(t, c, "B", "bob")

	payloadB := decodeData[ChatStartPayload](t, emB.byType(EventChatStart)[0])
	assert.Equal(t, "x", payloadB.PartnerName)
	assert.NotContains(t, payloadB.PartnerName, "<")
}

func TestSendMessageRelaysToPartner(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{
		ID:   "m1",
		Text: "hi",
		Type: MessageTypeText,
	}))

	received := emB.byType(EventReceiveMessage)
	require.Len(t, received, 1)
	payload := decodeData[MessagePayload](t, received[0])
	assert.Equal(t, "hi", payload.Text)
	assert.Equal(t, "other", payload.Sender)
	assert.Equal(t, "m1", payload.ID)
	assert.Equal(t, MessageTypeText, payload.Type)
}

func TestSendMessageAssignsFallbackID(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "no id"}))

	payload := decodeData[MessagePayload](t, emB.byType(EventReceiveMessage)[0])
	assert.NotEmpty(t, payload.ID, "a server-assigned id must substitute a missing one")
}

func TestSendMessagePassesEncryptedPayloadVerbatim(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	encrypted := json.RawMessage(`{"iv":"abc","ct":"opaque-bytes"}`)
	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{ID: "m1", Encrypted: encrypted}))

	payload := decodeData[MessagePayload](t, emB.byType(EventReceiveMessage)[0])
	assert.JSONEq(t, string(encrypted), string(payload.Encrypted))
}

func TestSendMessageFromUnpairedDropped(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")

	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{ID: "m1", Text: "hi"}))

	assert.Empty(t, emA.events, "no error or relay is produced for an unpaired sender")
}

func TestRateLimitReportedToSenderOnly(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	for i := 0; i < 11; i++ {
		c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "spam"}))
	}

	assert.Equal(t, 10, emB.count(EventReceiveMessage), "messages 1-10 are delivered")
	assert.Equal(t, 1, emA.count(EventRateLimitExceeded), "message 11 is reported to the sender")
	assert.Zero(t, emB.count(EventRateLimitExceeded), "the partner never sees the rejection")

	notice := decodeData[RateLimitExceededPayload](t, emA.byType(EventRateLimitExceeded)[0])
	assert.NotEmpty(t, notice.Message)
}

func TestRateLimitWindowRecovers(t *testing.T) {
	c, clock := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	for i := 0; i < 11; i++ {
		c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "spam"}))
	}
	assert.Equal(t, 10, emB.count(EventReceiveMessage))

	clock.advance(time.Second)
	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "fresh"}))
	assert.Equal(t, 11, emB.count(EventReceiveMessage), "a new window admits messages again")
}

func TestTypingRelaysWithoutRateLimit(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	for i := 0; i < 20; i++ {
		c.Dispatch("A", inbound(t, EventTyping, nil))
	}
	c.Dispatch("A", inbound(t, EventStopTyping, nil))

	assert.Equal(t, 20, emB.count(EventTyping), "typing signals bypass the message limiter")
	assert.Equal(t, 1, emB.count(EventStopTyping))
	assert.Zero(t, emA.count(EventRateLimitExceeded))
}

func TestTypingWhileUnpairedIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")

	c.Dispatch("A", inbound(t, EventTyping, nil))

	assert.Empty(t, emA.events)
}

func TestEditAndDeleteRelay(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventEditMessage, EditMessagePayload{ID: "m1", Text: "edited"}))
	c.Dispatch("A", inbound(t, EventDeleteMessage, DeleteMessagePayload{ID: "m1"}))

	edited := decodeData[MessageEditedPayload](t, emB.byType(EventMessageEdited)[0])
	assert.Equal(t, "m1", edited.ID)
	assert.Equal(t, "edited", edited.Text)

	deleted := decodeData[MessageDeletedPayload](t, emB.byType(EventMessageDeleted)[0])
	assert.Equal(t, "m1", deleted.ID)
}

func TestExchangeKeysForwardedWhenPaired(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventExchangeKeys, ExchangeKeysPayload{PublicKey: "key-A"}))

	forwarded := emB.byType(EventPartnerPublicKey)
	require.Len(t, forwarded, 1)
	payload := decodeData[PartnerPublicKeyPayload](t, forwarded[0])
	assert.Equal(t, "key-A", payload.PublicKey)
}

func TestExchangeKeysStoredButNotForwardedRetroactively(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	// A publishes before pairing.
	c.Dispatch("A", inbound(t, EventExchangeKeys, ExchangeKeysPayload{PublicKey: "key-A"}))

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	assert.Zero(t, emB.count(EventPartnerPublicKey),
		"a pre-pairing key is stored but not delivered on chat_start; each side re-publishes")

	// Re-publication after pairing reaches the partner and overwrites the record.
	c.Dispatch("A", inbound(t, EventExchangeKeys, ExchangeKeysPayload{PublicKey: "key-A2"}))
	payload := decodeData[PartnerPublicKeyPayload](t, emB.byType(EventPartnerPublicKey)[0])
	assert.Equal(t, "key-A2", payload.PublicKey)

	stored, ok := c.keys.get("A")
	assert.True(t, ok)
	assert.Equal(t, "key-A2", stored)
}

func TestExchangeKeysEmptyPayloadIgnored(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")

	c.Dispatch("A", inbound(t, EventExchangeKeys, ExchangeKeysPayload{}))

	_, ok := c.keys.get("A")
	assert.False(t, ok)
}

func TestSkipNotifiesPartnerAndFreesBoth(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventSkip, nil))

	assert.Equal(t, 1, emB.count(EventPartnerDisconnected))

	_, _, rooms := c.Stats()
	assert.Equal(t, 0, rooms)

	// The initiator may immediately re-join the queue.
	joinQueue(t, c, "A", "alice")
	_, queued, _ := c.Stats()
	assert.Equal(t, 1, queued)
}

func TestSkipWhileQueuedLeavesQueue(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")

	joinQueue(t, c, "A", "alice")
	c.Dispatch("A", inbound(t, EventSkip, nil))

	_, queued, _ := c.Stats()
	assert.Equal(t, 0, queued)

	// The skipped connection is no longer matchable.
	emB := connect(t, c, "B")
	joinQueue(t, c, "B", "bob")
	assert.Zero(t, emB.count(EventChatStart))
}

func TestDoubleSkipIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")

	c.Dispatch("A", inbound(t, EventSkip, nil))
	c.Dispatch("A", inbound(t, EventSkip, nil))

	assert.Equal(t, 1, emB.count(EventPartnerDisconnected), "the second skip has no observable effect")
}

func TestDisconnectCleansUpEverything(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")
	emB := connect(t, c, "B")

	joinQueue(t, c, "A", "alice")
	joinQueue(t, c, "B", "bob")
	c.Dispatch("A", inbound(t, EventExchangeKeys, ExchangeKeysPayload{PublicKey: "key-A"}))

	c.Disconnect("A")

	assert.Equal(t, 1, emB.count(EventPartnerDisconnected))

	connections, queued, rooms := c.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, rooms)

	_, ok := c.keys.get("A")
	assert.False(t, ok, "key record is discarded on disconnect")

	// Events from the dead identity are dropped.
	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "ghost"}))
	assert.Zero(t, emB.count(EventReceiveMessage))

	// Disconnect is idempotent.
	c.Disconnect("A")
	assert.Equal(t, 1, emB.count(EventPartnerDisconnected))
}

func TestDisconnectWhileQueuedRemovesFromQueue(t *testing.T) {
	c, _ := newTestCoordinator(t)
	connect(t, c, "A")

	joinQueue(t, c, "A", "alice")
	c.Disconnect("A")

	connections, queued, _ := c.Stats()
	assert.Equal(t, 0, connections)
	assert.Equal(t, 0, queued)
}

func TestShutdownClosesAllConnections(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")

	c.Shutdown()

	assert.True(t, emA.isClosed())
	assert.True(t, emB.isClosed())

	// Late registrations are rejected and closed.
	emC := &fakeEmitter{}
	c.Register("C", emC)
	assert.True(t, emC.isClosed())
}

// TestEndToEndScenario walks the full matchmaking, relay, rate-limit, and skip
// sequence through the coordinator.
func TestEndToEndScenario(t *testing.T) {
	c, _ := newTestCoordinator(t)
	emA := connect(t, c, "A")
	emB := connect(t, c, "B")

	// A joins; queue=[A].
	joinQueue(t, c, "A", "alice")
	_, queued, _ := c.Stats()
	require.Equal(t, 1, queued)

	// B joins; both paired, queue empty, both receive chat_start.
	joinQueue(t, c, "B", "bob")
	_, queued, rooms := c.Stats()
	require.Equal(t, 0, queued)
	require.Equal(t, 1, rooms)
	require.Equal(t, 1, emA.count(EventChatStart))
	require.Equal(t, 1, emB.count(EventChatStart))

	// A sends "hi"; B receives it attributed to "other".
	c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{ID: "m1", Text: "hi"}))
	received := decodeData[MessagePayload](t, emB.byType(EventReceiveMessage)[0])
	require.Equal(t, "hi", received.Text)
	require.Equal(t, "other", received.Sender)

	// A sends 10 more rapid messages; the first 9 are delivered (10 total in the
	// window), the 11th triggers rate_limit_exceeded to A only.
	for i := 0; i < 10; i++ {
		c.Dispatch("A", inbound(t, EventSendMessage, MessagePayload{Text: "rapid"}))
	}
	require.Equal(t, 10, emB.count(EventReceiveMessage))
	require.Equal(t, 1, emA.count(EventRateLimitExceeded))
	require.Zero(t, emB.count(EventRateLimitExceeded))

	// A skips; B is notified, the registry is empty, A may re-join.
	c.Dispatch("A", inbound(t, EventSkip, nil))
	require.Equal(t, 1, emB.count(EventPartnerDisconnected))
	_, _, rooms = c.Stats()
	require.Equal(t, 0, rooms)

	joinQueue(t, c, "A", "alice")
	_, queued, _ = c.Stats()
	require.Equal(t, 1, queued)
}
