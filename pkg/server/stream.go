package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/agent"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = 54 * time.Second
)

// Stream fans run events out to websocket subscribers. It implements
// agent.EventSink; a slow or gone subscriber is dropped rather than
// stalling the run.
type Stream struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*streamClient
}

type streamClient struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Gorilla connections permit one concurrent writer.
func (c *streamClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewStream creates an event stream with no subscribers.
func NewStream(logger zerolog.Logger) *Stream {
	return &Stream{
		clients: make(map[string]*streamClient),
		logger:  logger.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// Publish implements agent.EventSink.
func (s *Stream) Publish(event agent.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event.Type).Msg("Failed to marshal event")
		return
	}

	for _, client := range s.snapshot() {
		if err := client.write(websocket.TextMessage, data); err != nil {
			s.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Str("event", event.Type).
				Msg("Failed to send event, dropping client")
			s.drop(client.id)
		}
	}
}

// HandleUpgrade upgrades an HTTP request to a websocket subscription.
func (s *Stream) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}

	client := &streamClient{
		id:   clientID,
		conn: conn,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[clientID] = client
	s.mu.Unlock()

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Event stream client connected")

	go s.readLoop(client)
	go s.pingLoop(client)
}

// Count returns the number of connected subscribers.
func (s *Stream) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects all subscribers.
func (s *Stream) Close() {
	for _, client := range s.snapshot() {
		s.drop(client.id)
	}
}

// readLoop drains inbound frames so pongs are processed. Subscribers
// only listen; payloads they send are discarded.
func (s *Stream) readLoop(client *streamClient) {
	defer s.drop(client.id)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("clientId", client.id).Msg("Event stream read error")
			}
			return
		}
	}
}

func (s *Stream) pingLoop(client *streamClient) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				s.drop(client.id)
				return
			}
		}
	}
}

func (s *Stream) snapshot() []*streamClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*streamClient, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	return clients
}

func (s *Stream) drop(clientID string) {
	s.mu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()

	if exists {
		client.close()
		s.logger.Info().Str("clientId", clientID).Msg("Event stream client disconnected")
	}
}
