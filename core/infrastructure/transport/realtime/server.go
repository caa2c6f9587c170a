// Package realtime serves the /ws endpoint: clients join rooms and exchange
// events, and every event is mirrored to the other workers through the bus.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
	"github.com/hyperterse/hypercluster/core/logger"
	"github.com/hyperterse/hypercluster/core/observability"
)

// Server tracks the websocket clients of one worker.
type Server struct {
	origin   string
	bus      bus.Adapter
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewServer creates a server emitting as origin and subscribes it to adapter.
// adapter may be nil, in which case events stay on this worker.
func NewServer(origin string, adapter bus.Adapter) (*Server, error) {
	s := &Server{
		origin: origin,
		bus:    adapter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.New("realtime"),
		clients: make(map[*client]struct{}),
	}

	if adapter != nil {
		if err := adapter.Subscribe(s.receive); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ServeHTTP upgrades the request and runs the client's pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("Websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
	if !s.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Broadcast emits event with data to room on this worker and on every other
// worker. An empty room addresses all clients.
func (s *Server) Broadcast(room, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Errorf("Failed to encode %s payload: %v", event, err)
		return
	}
	s.emit(bus.Envelope{Origin: s.origin, Room: room, Event: event, Payload: payload}, observability.RealtimeSourceServer)
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client. The bus adapter is owned by the caller.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
	return nil
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	s.logger.Debugf("Client connected (%d total)", len(s.clients))
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
		s.logger.Debugf("Client disconnected (%d total)", len(s.clients))
	}
}

func (s *Server) handle(c *client, msg Inbound) {
	switch msg.Event {
	case EventJoin, EventLeave:
		if msg.Room == "" {
			return
		}
		ack := EventJoined
		if msg.Event == EventLeave {
			ack = EventLeft
		}
		frame, err := json.Marshal(Outbound{Event: ack, Room: msg.Room, Origin: s.origin})
		if err != nil {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.clients[c]; !ok {
			return
		}
		if msg.Event == EventJoin {
			c.rooms[msg.Room] = struct{}{}
		} else {
			delete(c.rooms, msg.Room)
		}
		c.enqueue(frame)
	default:
		s.emit(bus.Envelope{Origin: s.origin, Room: msg.Room, Event: msg.Event, Payload: msg.Data}, observability.RealtimeSourceClient)
	}
}

// emit delivers env locally, then hands it to the bus for the other workers.
func (s *Server) emit(env bus.Envelope, source string) {
	observability.RecordRealtimeEvent(context.Background(), source)
	s.deliver(env)
	if s.bus != nil {
		s.bus.Publish(env)
	}
}

// receive handles an envelope emitted on another worker.
func (s *Server) receive(env bus.Envelope) {
	observability.RecordRealtimeEvent(context.Background(), observability.RealtimeSourceBus)
	s.deliver(env)
}

// deliver writes env to every local client in its room.
func (s *Server) deliver(env bus.Envelope) {
	frame, err := json.Marshal(Outbound{
		Event:  env.Event,
		Room:   env.Room,
		Data:   env.Payload,
		Origin: env.Origin,
	})
	if err != nil {
		s.logger.Errorf("Failed to encode %s frame: %v", env.Event, err)
		return
	}

	var slow []*client
	s.mu.RLock()
	for c := range s.clients {
		if !c.inRoom(env.Room) {
			continue
		}
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Warnf("Disconnecting slow client in room %q", env.Room)
		s.unregister(c)
	}
}
