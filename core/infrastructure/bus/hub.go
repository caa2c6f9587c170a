package bus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/logger"
)

const (
	hubWriteTimeout = 5 * time.Second
	hubReadBuffer   = 64 * 1024
)

// DefaultHubPath is the unix socket the primary listens on for worker
// connections.
func DefaultHubPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("hypercluster-%d.sock", os.Getpid()))
}

// Hub is the primary-side relay of the hub driver. Workers connect over a
// unix socket and write newline-delimited envelopes; the hub forwards every
// line to all other connected workers. A worker that disappears is dropped
// without affecting delivery to the rest.
type Hub struct {
	ln   net.Listener
	path string
	log  *logger.Logger

	mu     sync.Mutex
	conns  map[*hubConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type hubConn struct {
	conn net.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *hubConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub listens on path and starts relaying. A stale socket file at path is
// removed first.
func NewHub(path string) (*Hub, error) {
	log := logger.New("bus:hub")

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, log.Errorf("failed to remove stale hub socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, log.Errorf("failed to listen on hub socket %s: %w", path, err)
	}

	h := &Hub{
		ln:    ln,
		path:  path,
		log:   log,
		conns: make(map[*hubConn]struct{}),
	}
	h.wg.Add(1)
	go h.acceptLoop()

	log.Infof("Event hub listening on %s", path)
	return h, nil
}

// Path returns the socket path workers dial.
func (h *Hub) Path() string {
	return h.path
}

// BusConfig implements PrimaryEndpoint.
func (h *Hub) BusConfig() config.BusConfig {
	return config.BusConfig{Driver: config.BusHub, URL: h.path}
}

// Connections returns the number of attached workers.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if !closed {
				h.log.Errorf("Hub accept failed: %v", err)
			}
			return
		}

		c := &hubConn{
			conn: conn,
			out:  make(chan []byte, outboxSize),
			done: make(chan struct{}),
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.conns[c] = struct{}{}
		h.mu.Unlock()

		h.wg.Add(2)
		go h.readLoop(c)
		go h.writeLoop(c)
		h.log.Debugf("Worker attached to hub (%d connected)", h.Connections())
	}
}

func (h *Hub) readLoop(c *hubConn) {
	defer h.wg.Done()
	defer h.drop(c)

	err := readLines(c.conn, MaxEnvelopeSize, func(line []byte) {
		h.relay(c, append(line, '\n'))
	}, func(n int) {
		envelopesDropped.WithLabelValues("hub").Inc()
		h.log.Warnf("Skipping oversized hub message (%d bytes)", n)
	})
	if err != nil && !errors.Is(err, io.EOF) {
		select {
		case <-c.done:
		default:
			h.log.Warnf("Hub connection read failed: %v", err)
		}
	}
}

// readLines calls line for every newline-terminated message read from r,
// without the newline. The slice is only valid during the call. A message
// longer than limit is skipped whole and reported to oversized; the stream
// stays usable. It returns io.EOF when r is exhausted.
func readLines(r io.Reader, limit int, line func([]byte), oversized func(n int)) error {
	br := bufio.NewReaderSize(r, hubReadBuffer)
	var buf []byte
	skipped := -1
	for {
		chunk, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			if skipped >= 0 {
				oversized(skipped + len(chunk))
				skipped = -1
				continue
			}
			if len(buf) > 0 {
				chunk = append(buf, chunk...)
				buf = buf[:0]
			}
			if len(chunk)-1 > limit {
				oversized(len(chunk))
				continue
			}
			line(chunk[:len(chunk)-1])
		case errors.Is(err, bufio.ErrBufferFull):
			if skipped >= 0 {
				skipped += len(chunk)
				continue
			}
			if len(buf)+len(chunk) > limit {
				skipped = len(buf) + len(chunk)
				buf = buf[:0]
				continue
			}
			buf = append(buf, chunk...)
		default:
			return err
		}
	}
}

func (h *Hub) relay(from *hubConn, line []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if c == from {
			continue
		}
		msg := append([]byte(nil), line...)
		select {
		case c.out <- msg:
		default:
			envelopesDropped.WithLabelValues("hub").Inc()
		}
	}
}

func (h *Hub) writeLoop(c *hubConn) {
	defer h.wg.Done()
	for {
		select {
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if _, err := c.conn.Write(msg); err != nil {
				h.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) drop(c *hubConn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	c.close()
	if ok {
		h.log.Debugf("Worker detached from hub")
	}
}

// Close stops accepting, disconnects every worker and removes the socket.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*hubConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	err := h.ln.Close()
	for _, c := range conns {
		c.close()
	}
	h.wg.Wait()
	os.Remove(h.path)
	return err
}

// HubAdapter is the worker-side client of a Hub. It does not reconnect:
// when the hub connection breaks it reports the loss through Lost, and the
// worker is expected to exit so the supervisor starts a fresh one.
type HubAdapter struct {
	conn   net.Conn
	origin string
	out    chan []byte
	done   chan struct{}
	lost   chan struct{}
	log    *logger.Logger

	mu       sync.Mutex
	handler  Handler
	closed   bool
	err      error
	once     sync.Once
	lostOnce sync.Once
	wg       sync.WaitGroup
}

// DialHub connects to the hub at path.
func DialHub(path, origin string) (*HubAdapter, error) {
	log := logger.New("bus:hub")
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, log.Errorf("failed to connect to event hub %s: %w", path, err)
	}

	a := &HubAdapter{
		conn:   conn,
		origin: origin,
		out:    make(chan []byte, outboxSize),
		done:   make(chan struct{}),
		lost:   make(chan struct{}),
		log:    log,
	}
	a.wg.Add(2)
	go a.readLoop()
	go a.writeLoop()
	log.Debugf("Connected to event hub %s", path)
	return a, nil
}

func (a *HubAdapter) Publish(env Envelope) {
	if env.Origin == "" {
		env.Origin = a.origin
	}
	data, err := encode(env)
	if err != nil {
		a.log.Warnf("Dropping envelope %q: %v", env.Event, err)
		envelopesDropped.WithLabelValues("hub").Inc()
		return
	}
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.out <- append(data, '\n'):
		envelopesPublished.WithLabelValues("hub").Inc()
	default:
		envelopesDropped.WithLabelValues("hub").Inc()
	}
}

func (a *HubAdapter) Subscribe(h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.handler != nil {
		return ErrAlreadySubscribed
	}
	a.handler = h
	return nil
}

func (a *HubAdapter) currentHandler() Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

func (a *HubAdapter) readLoop() {
	defer a.wg.Done()
	defer a.shutdown()

	err := readLines(a.conn, MaxEnvelopeSize, func(line []byte) {
		env, err := decode(line)
		if err != nil {
			a.log.Warnf("Ignoring malformed hub message: %v", err)
			return
		}
		if env.Origin == a.origin {
			return
		}
		envelopesReceived.WithLabelValues("hub").Inc()
		if h := a.currentHandler(); h != nil {
			h(env)
		}
	}, func(n int) {
		envelopesDropped.WithLabelValues("hub").Inc()
		a.log.Warnf("Skipping oversized hub message (%d bytes)", n)
	})
	a.fail(fmt.Errorf("%w: hub read: %v", ErrConnectionLost, err))
}

func (a *HubAdapter) writeLoop() {
	defer a.wg.Done()
	for {
		select {
		case msg := <-a.out:
			a.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if _, err := a.conn.Write(msg); err != nil {
				a.fail(fmt.Errorf("%w: hub write: %v", ErrConnectionLost, err))
				return
			}
		case <-a.done:
			return
		}
	}
}

// Lost is closed when the hub connection breaks. It is never closed by Close.
func (a *HubAdapter) Lost() <-chan struct{} {
	return a.lost
}

// Err returns why the connection was lost, or nil.
func (a *HubAdapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *HubAdapter) fail(err error) {
	a.mu.Lock()
	closed := a.closed
	if !closed && a.err == nil {
		a.err = err
	}
	a.mu.Unlock()

	if !closed {
		a.lostOnce.Do(func() {
			a.log.Errorf("Lost connection to event hub: %v", err)
			close(a.lost)
		})
	}
	a.shutdown()
}

func (a *HubAdapter) shutdown() {
	a.once.Do(func() {
		close(a.done)
		a.conn.Close()
	})
}

func (a *HubAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.shutdown()
	a.wg.Wait()
	return nil
}
