package broker

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rapidaai/padbroker/internal/hub"
	"github.com/rapidaai/padbroker/internal/log"
	"github.com/rapidaai/padbroker/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	b := New(hub.NewMemory(), log.Nop(), 30*time.Second)
	srv := httptest.NewServer(b.Engine())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, m *wire.Message) {
	t.Helper()
	data, err := wire.Serialize(m)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func recv(t *testing.T, conn *websocket.Conn) *wire.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	m, err := wire.Parse(data)
	require.NoError(t, err)
	return m
}

func TestLateJoinerSyncConvergence(t *testing.T) {
	_, url := newTestServer(t)

	renderer := dial(t, url)
	send(t, renderer, wire.NewJoin("room-x", wire.RoleRenderer))

	controller := dial(t, url)
	send(t, controller, wire.NewJoin("room-x", wire.RoleController))

	// Controller's join triggers a broker-published request-sync; the
	// renderer (also a room member) observes it too, but what matters is
	// the renderer now knows to respond with its current state.
	reqSync := recv(t, renderer)
	require.Equal(t, wire.TypeRequestSync, reqSync.Type)

	send(t, renderer, wire.NewSyncState(140, map[int]string{0: "a"}))

	_ = recv(t, controller) // request-sync published by its own controller join
	sync := recv(t, controller)
	require.Equal(t, wire.TypeSyncState, sync.Type)
	require.Equal(t, 140, *sync.Tempo)
	require.Equal(t, "a", sync.PadMappings[0])
}

func TestRoleEnforcementOnSyncState(t *testing.T) {
	_, url := newTestServer(t)

	controller := dial(t, url)
	send(t, controller, wire.NewJoin("room-y", wire.RoleController))
	_ = recv(t, controller) // request-sync published by its own controller join

	other := dial(t, url)
	send(t, other, wire.NewJoin("room-y", wire.RoleController))
	_ = recv(t, controller) // request-sync published when "other" joined

	send(t, controller, wire.NewSyncState(100, nil))

	errMsg := recv(t, controller)
	require.Equal(t, wire.TypeError, errMsg.Type)
	require.Equal(t, "Only renderer can sync state", errMsg.ErrorMessage)
}

func TestPadHitFanoutIncludesSender(t *testing.T) {
	_, url := newTestServer(t)

	a := dial(t, url)
	send(t, a, wire.NewJoin("room-z", wire.RoleRenderer))

	vel := 80
	send(t, a, wire.NewPadHit(5, &vel))

	got := recv(t, a)
	require.Equal(t, wire.TypePadHit, got.Type)
	require.Equal(t, 5, *got.PadIndex)
	require.Equal(t, 80, *got.Velocity)
}

func TestPadHitWithoutJoinIsRejected(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, wire.NewPadHit(1, nil))
	got := recv(t, conn)
	require.Equal(t, wire.TypeError, got.Type)
	require.Equal(t, "Not joined", got.ErrorMessage)
}

func TestMalformedFrameGetsErrorAndSocketStaysOpen(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	got := recv(t, conn)
	require.Equal(t, wire.TypeError, got.Type)
	require.Equal(t, "Invalid message format", got.ErrorMessage)

	// socket still open: a valid join now succeeds without reconnecting
	send(t, conn, wire.NewJoin("room-still-open", wire.RoleController))
}

func TestHeartbeatGetsPong(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	send(t, conn, wire.NewHeartbeat())
	got := recv(t, conn)
	require.Equal(t, wire.TypePong, got.Type)
}
