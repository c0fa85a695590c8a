package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/session"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event session.EventType, data any) {
	t.Helper()

	env, err := session.NewEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func readEvent(t *testing.T, conn *websocket.Conn) session.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var env session.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitForQueued(t *testing.T, coord *session.Coordinator, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, queued, _ := coord.Stats(); queued == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d", want)
}

func TestWebSocketPairAndRelay(t *testing.T) {
	deps := testDeps()
	srv := httptest.NewServer(Router(deps))
	defer srv.Close()

	connA := dialWS(t, srv)
	connB := dialWS(t, srv)

	sendEvent(t, connA, session.EventJoinQueue, session.JoinQueuePayload{Username: "alice"})
	waitForQueued(t, deps.Coordinator, 1)

	sendEvent(t, connB, session.EventJoinQueue, session.JoinQueuePayload{Username: "bob"})

	startA := readEvent(t, connA)
	require.Equal(t, session.EventChatStart, startA.Event)
	startB := readEvent(t, connB)
	require.Equal(t, session.EventChatStart, startB.Event)

	sendEvent(t, connA, session.EventSendMessage, session.MessagePayload{ID: "m1", Text: "hi", Type: session.MessageTypeText})

	received := readEvent(t, connB)
	require.Equal(t, session.EventReceiveMessage, received.Event)
	assert.Contains(t, string(received.Data), `"text":"hi"`)
	assert.Contains(t, string(received.Data), `"sender":"other"`)
}

func TestWebSocketSkipNotifiesPartner(t *testing.T) {
	deps := testDeps()
	srv := httptest.NewServer(Router(deps))
	defer srv.Close()

	connA := dialWS(t, srv)
	connB := dialWS(t, srv)

	sendEvent(t, connA, session.EventJoinQueue, session.JoinQueuePayload{Username: "alice"})
	waitForQueued(t, deps.Coordinator, 1)
	sendEvent(t, connB, session.EventJoinQueue, session.JoinQueuePayload{Username: "bob"})

	require.Equal(t, session.EventChatStart, readEvent(t, connA).Event)
	require.Equal(t, session.EventChatStart, readEvent(t, connB).Event)

	sendEvent(t, connA, session.EventSkip, nil)

	notice := readEvent(t, connB)
	assert.Equal(t, session.EventPartnerDisconnected, notice.Event)
}

func TestWebSocketDisconnectNotifiesPartner(t *testing.T) {
	deps := testDeps()
	srv := httptest.NewServer(Router(deps))
	defer srv.Close()

	connA := dialWS(t, srv)
	connB := dialWS(t, srv)

	sendEvent(t, connA, session.EventJoinQueue, session.JoinQueuePayload{Username: "alice"})
	waitForQueued(t, deps.Coordinator, 1)
	sendEvent(t, connB, session.EventJoinQueue, session.JoinQueuePayload{Username: "bob"})

	require.Equal(t, session.EventChatStart, readEvent(t, connA).Event)
	require.Equal(t, session.EventChatStart, readEvent(t, connB).Event)

	require.NoError(t, connA.Close())

	notice := readEvent(t, connB)
	assert.Equal(t, session.EventPartnerDisconnected, notice.Event)
}
