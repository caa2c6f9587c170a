package bus

import (
	"sync"
)

// Memory is a process-local bus. Every endpoint created from the same Memory
// sees the envelopes of every other endpoint, which lets several runtimes in
// one process behave like a pool of workers.
type Memory struct {
	mu        sync.RWMutex
	nextID    int
	endpoints map[int]*memoryEndpoint
}

func NewMemory() *Memory {
	return &Memory{endpoints: make(map[int]*memoryEndpoint)}
}

// NewLocal returns an adapter on a private bus. Nothing published through it
// reaches anyone else; it is the single-process adapter.
func NewLocal(origin string) Adapter {
	return NewMemory().Endpoint(origin)
}

// Endpoint attaches a new adapter to the bus.
func (m *Memory) Endpoint(origin string) Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &memoryEndpoint{
		bus:    m,
		id:     m.nextID,
		origin: origin,
		queue:  make(chan Envelope, outboxSize),
		done:   make(chan struct{}),
	}
	m.nextID++
	m.endpoints[e.id] = e
	return e
}

func (m *Memory) publish(from *memoryEndpoint, env Envelope) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, e := range m.endpoints {
		if id == from.id || !e.subscribed() {
			continue
		}
		msg := env
		msg.Payload = append([]byte(nil), env.Payload...)
		select {
		case e.queue <- msg:
		default:
			// Non-blocking send to avoid one slow subscriber stalling all publishers.
			envelopesDropped.WithLabelValues("memory").Inc()
		}
	}
}

func (m *Memory) remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, id)
}

type memoryEndpoint struct {
	bus    *Memory
	id     int
	origin string
	queue  chan Envelope
	done   chan struct{}

	mu      sync.Mutex
	handler Handler
	closed  bool
	wg      sync.WaitGroup
}

func (e *memoryEndpoint) subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler != nil && !e.closed
}

func (e *memoryEndpoint) Publish(env Envelope) {
	if env.Origin == "" {
		env.Origin = e.origin
	}
	envelopesPublished.WithLabelValues("memory").Inc()
	e.bus.publish(e, env)
}

func (e *memoryEndpoint) Subscribe(h Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.handler != nil {
		return ErrAlreadySubscribed
	}
	e.handler = h

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case env := <-e.queue:
				envelopesReceived.WithLabelValues("memory").Inc()
				h(env)
			case <-e.done:
				return
			}
		}
	}()
	return nil
}

func (e *memoryEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.bus.remove(e.id)
	close(e.done)
	e.wg.Wait()
	return nil
}
