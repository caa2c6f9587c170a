package bus

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExternalFanOut(t *testing.T, a, b Adapter) {
	t.Helper()
	var rb recorder
	require.NoError(t, b.Subscribe(rb.handle))
	require.NoError(t, a.Subscribe(func(Envelope) {}))

	a.Publish(envelope("chat", 7))

	require.Eventually(t, func() bool { return rb.len() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "worker-a", rb.snapshot()[0].Origin)
}

func TestRedisAdapter_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping Redis bus integration test")
	}
	channel := "hypercluster-test-" + t.Name()

	a, err := NewRedisAdapter(url, channel, "worker-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisAdapter(url, channel, "worker-b")
	require.NoError(t, err)
	defer b.Close()

	testExternalFanOut(t, a, b)
}

func TestNATSAdapter_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping NATS bus integration test")
	}
	subject := "hypercluster.test." + t.Name()

	a, err := NewNATSAdapter(url, subject, "worker-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewNATSAdapter(url, subject, "worker-b")
	require.NoError(t, err)
	defer b.Close()

	testExternalFanOut(t, a, b)
}
