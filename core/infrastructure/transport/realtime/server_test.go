package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
)

func newWorker(t *testing.T, origin string, adapter bus.Adapter) (*Server, string) {
	t.Helper()
	s, err := NewServer(origin, adapter)
	require.NoError(t, err)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		_ = s.Close()
		ts.Close()
		if adapter != nil {
			_ = adapter.Close()
		}
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn, timeout time.Duration) (Outbound, bool) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var out Outbound
	if err := conn.ReadJSON(&out); err != nil {
		return Outbound{}, false
	}
	return out, true
}

func join(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	send(t, conn, Inbound{Event: EventJoin, Room: room})
	out, ok := read(t, conn, 2*time.Second)
	require.True(t, ok, "no join acknowledgement")
	require.Equal(t, Outbound{Event: EventJoined, Room: room, Origin: out.Origin}, out)
}

func expectEvent(t *testing.T, conn *websocket.Conn, event string) Outbound {
	t.Helper()
	out, ok := read(t, conn, 2*time.Second)
	require.True(t, ok, "expected %s", event)
	require.Equal(t, event, out.Event)
	return out
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	out, ok := read(t, conn, 200*time.Millisecond)
	assert.False(t, ok, "unexpected frame %+v", out)
}

func TestRoomBroadcastOnOneWorker(t *testing.T) {
	_, url := newWorker(t, "w1", bus.NewLocal("w1"))

	alice := dial(t, url)
	bob := dial(t, url)
	carol := dial(t, url)
	join(t, alice, "chat")
	join(t, bob, "other")
	join(t, carol, "chat")

	send(t, alice, Inbound{Event: "message", Room: "chat", Data: json.RawMessage(`{"text":"hola"}`)})

	for _, conn := range []*websocket.Conn{alice, carol} {
		out := expectEvent(t, conn, "message")
		assert.Equal(t, "chat", out.Room)
		assert.Equal(t, "w1", out.Origin)
		assert.JSONEq(t, `{"text":"hola"}`, string(out.Data))
	}
	expectSilence(t, bob)
}

func TestEmptyRoomReachesEveryClient(t *testing.T) {
	_, url := newWorker(t, "w1", nil)

	a := dial(t, url)
	b := dial(t, url)
	join(t, b, "somewhere")

	send(t, a, Inbound{Event: "ping"})
	expectEvent(t, a, "ping")
	expectEvent(t, b, "ping")
}

func TestLeaveStopsDelivery(t *testing.T) {
	_, url := newWorker(t, "w1", nil)

	a := dial(t, url)
	b := dial(t, url)
	join(t, a, "chat")
	join(t, b, "chat")

	send(t, b, Inbound{Event: EventLeave, Room: "chat"})
	expectEvent(t, b, EventLeft)

	send(t, a, Inbound{Event: "message", Room: "chat"})
	expectEvent(t, a, "message")
	expectSilence(t, b)
}

func TestCrossWorkerFanOut(t *testing.T) {
	shared := bus.NewMemory()
	_, url1 := newWorker(t, "w1", shared.Endpoint("w1"))
	_, url2 := newWorker(t, "w2", shared.Endpoint("w2"))
	_, url3 := newWorker(t, "w3", shared.Endpoint("w3"))

	sender := dial(t, url1)
	remote := dial(t, url2)
	elsewhere := dial(t, url3)
	join(t, sender, "chat")
	join(t, remote, "chat")
	join(t, elsewhere, "lobby")

	send(t, sender, Inbound{Event: "message", Room: "chat", Data: json.RawMessage(`1`)})

	expectEvent(t, sender, "message")
	out := expectEvent(t, remote, "message")
	assert.Equal(t, "w1", out.Origin)
	assert.Equal(t, "chat", out.Room)

	// exactly once
	expectSilence(t, remote)
	expectSilence(t, elsewhere)
}

func TestIsolatedWorkersDoNotFanOut(t *testing.T) {
	_, url1 := newWorker(t, "w1", bus.NewLocal("w1"))
	_, url2 := newWorker(t, "w2", bus.NewLocal("w2"))

	a := dial(t, url1)
	b := dial(t, url2)
	join(t, a, "chat")
	join(t, b, "chat")

	send(t, a, Inbound{Event: "message", Room: "chat"})
	expectEvent(t, a, "message")
	expectSilence(t, b)
}

func TestServerBroadcastReachesRemoteClients(t *testing.T) {
	shared := bus.NewMemory()
	s1, url1 := newWorker(t, "w1", shared.Endpoint("w1"))
	_, url2 := newWorker(t, "w2", shared.Endpoint("w2"))

	local := dial(t, url1)
	remote := dial(t, url2)
	join(t, local, "productos")
	join(t, remote, "productos")

	s1.Broadcast("productos", "product:created", map[string]string{"id": "p1"})

	for _, conn := range []*websocket.Conn{local, remote} {
		out := expectEvent(t, conn, "product:created")
		assert.Equal(t, "w1", out.Origin)
		assert.JSONEq(t, `{"id":"p1"}`, string(out.Data))
	}
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	s, url := newWorker(t, "w1", nil)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	join(t, conn, "chat")
	assert.Equal(t, 1, s.Clients())
}

func TestCloseDisconnectsClients(t *testing.T) {
	s, url := newWorker(t, "w1", nil)

	conn := dial(t, url)
	join(t, conn, "chat")
	require.NoError(t, s.Close())

	_, ok := read(t, conn, 2*time.Second)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Clients())
}
