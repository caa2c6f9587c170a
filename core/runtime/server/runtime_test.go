package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
	"github.com/hyperterse/hypercluster/core/infrastructure/transport/realtime"
)

func testConfig(mode config.Mode, port int) config.RunConfig {
	return config.RunConfig{
		Mode:        mode,
		Port:        port,
		WorkerCount: 1,
		Bus:         config.BusConfig{Driver: config.BusHub, Channel: config.DefaultBusChannel},
		Store:       config.StoreConfig{Driver: config.StoreMemory},
		LogLevel:    config.DefaultLogLevel,
	}
}

func TestRuntimeLifecycle_StartStop(t *testing.T) {
	port := freePort(t)

	var readyCalls atomic.Int32
	rt, err := NewRuntime(testConfig(config.ModeSingle, port),
		WithHost("127.0.0.1"),
		WithReadyNotifier(func() { readyCalls.Add(1) }),
	)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, rt.State())
	assert.Nil(t, rt.Addr())
	assert.NotEmpty(t, rt.WorkerID())

	require.NoError(t, rt.StartAsync())
	assert.Equal(t, StateListening, rt.State())
	assert.Equal(t, int32(1), readyCalls.Load())
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", port), rt.Addr().String())

	heartbeatURL := fmt.Sprintf("http://127.0.0.1:%d/heartbeat", port)
	require.NoError(t, waitForHTTP200(heartbeatURL, 5*time.Second))

	productsURL := fmt.Sprintf("http://127.0.0.1:%d/api/productos", port)
	require.NoError(t, waitForHTTP200(productsURL, 5*time.Second))

	require.Error(t, rt.StartAsync(), "second start must fail")

	require.NoError(t, rt.Stop())
	assert.Equal(t, StateStopped, rt.State())
	require.NoError(t, rt.Stop())

	_, err = http.Get(heartbeatURL)
	assert.Error(t, err)
}

func TestRuntimeBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	var readyCalls atomic.Int32
	rt, err := NewRuntime(testConfig(config.ModeSingle, port),
		WithHost("127.0.0.1"),
		WithReadyNotifier(func() { readyCalls.Add(1) }),
	)
	require.NoError(t, err)
	defer rt.Stop()

	err = rt.StartAsync()
	require.Error(t, err)

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", port), bindErr.Addr)
	assert.Equal(t, StateIdle, rt.State())
	assert.Zero(t, readyCalls.Load())
}

func TestRuntimeStopsWhenHubConnectionIsLost(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hub needs unix sockets")
	}
	hub, err := bus.NewHub(filepath.Join(t.TempDir(), "bus.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })

	adapter, err := bus.DialHub(hub.Path(), "w0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	rt, err := NewRuntime(testConfig(config.ModeMulti, freePort(t)),
		WithHost("127.0.0.1"),
		WithWorkerID("w0"),
		WithBus(adapter),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- rt.Start() }()
	require.Eventually(t, func() bool { return rt.State() == StateListening }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, bus.ErrConnectionLost)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime kept serving after losing the event hub")
	}
	assert.Equal(t, StateStopped, rt.State())
}

func TestRuntimeStopDoesNotReportBusLoss(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hub needs unix sockets")
	}
	hub, err := bus.NewHub(filepath.Join(t.TempDir(), "bus.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })

	cfg := testConfig(config.ModeMulti, freePort(t))
	cfg.Bus.URL = hub.Path()
	rt, err := NewRuntime(cfg, WithHost("127.0.0.1"))
	require.NoError(t, err)
	require.NoError(t, rt.StartAsync())

	assert.NoError(t, rt.Stop())
}

func TestRuntimeMultiProcessWithoutBus(t *testing.T) {
	cfg := testConfig(config.ModeMulti, freePort(t))

	_, err := NewRuntime(cfg)
	require.Error(t, err)
}

func TestRuntimesShareAPortInMultiProcessMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shared port binding needs SO_REUSEPORT")
	}
	port := freePort(t)
	shared := bus.NewMemory()

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("w%d", i)
		rt, err := NewRuntime(testConfig(config.ModeMulti, port),
			WithHost("127.0.0.1"),
			WithWorkerID(id),
			WithBus(shared.Endpoint(id)),
		)
		require.NoError(t, err)
		require.NoError(t, rt.StartAsync())
		t.Cleanup(func() { _ = rt.Stop() })
	}

	require.NoError(t, waitForHTTP200(fmt.Sprintf("http://127.0.0.1:%d/heartbeat", port), 5*time.Second))
}

func TestRuntimeFanOutOverHub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hub needs unix sockets")
	}
	hub, err := bus.NewHub(filepath.Join(t.TempDir(), "bus.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })

	var urls []string
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("w%d", i)
		adapter, err := bus.DialHub(hub.Path(), id)
		require.NoError(t, err)
		t.Cleanup(func() { _ = adapter.Close() })

		port := freePort(t)
		rt, err := NewRuntime(testConfig(config.ModeMulti, port),
			WithHost("127.0.0.1"),
			WithWorkerID(id),
			WithBus(adapter),
		)
		require.NoError(t, err)
		require.NoError(t, rt.StartAsync())
		t.Cleanup(func() { _ = rt.Stop() })

		urls = append(urls, fmt.Sprintf("ws://127.0.0.1:%d/ws", port))
	}
	require.Eventually(t, func() bool { return hub.Connections() == 2 }, 5*time.Second, 20*time.Millisecond)

	sender := dialWS(t, urls[0])
	receiver := dialWS(t, urls[1])
	joinRoom(t, sender, "chat")
	joinRoom(t, receiver, "chat")

	require.NoError(t, sender.WriteJSON(realtime.Inbound{Event: "message", Room: "chat"}))

	for _, conn := range []*websocket.Conn{sender, receiver} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var out realtime.Outbound
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, "message", out.Event)
		assert.Equal(t, "w0", out.Origin)
	}
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(realtime.Inbound{Event: realtime.EventJoin, Room: room}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack realtime.Outbound
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, realtime.EventJoined, ack.Event)
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve free port: %v", err)
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("failed to resolve reserved TCP address")
	}
	return addr.Port
}

func waitForHTTP200(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", url)
}
