package sse

import (
	"encoding/json"
	"sync"
	"time"

	"labelsync/internal/logger"
)

const sendTimeout = 5 * time.Second

// SSEManager fans run events out to connected Server-Sent Event clients
type SSEManager struct {
	clients    map[chan []byte]bool
	clientsMux sync.RWMutex

	logger *logger.Logger
	now    func() time.Time
}

// NewSSEManager creates a new SSE manager
func NewSSEManager(logger *logger.Logger) *SSEManager {
	return &SSEManager{
		clients: make(map[chan []byte]bool),
		logger:  logger,
		now:     time.Now,
	}
}

// AddClient registers a new client connection
func (s *SSEManager) AddClient() chan []byte {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	channel := make(chan []byte, 10)
	s.clients[channel] = true

	s.logger.Debug("Added SSE client, total clients:", len(s.clients))
	return channel
}

// RemoveClient removes a client connection
func (s *SSEManager) RemoveClient(channel chan []byte) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	if _, exists := s.clients[channel]; exists {
		delete(s.clients, channel)
		close(channel)
		s.logger.Debug("Removed SSE client, remaining clients:", len(s.clients))
	}
}

// Broadcast sends an event to every connected client
func (s *SSEManager) Broadcast(eventType string, data interface{}) {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()

	if len(s.clients) == 0 {
		return
	}

	event := map[string]interface{}{
		"type": eventType,
		"data": data,
		"time": s.now().Unix(),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal broadcast event:", err)
		return
	}

	for channel := range s.clients {
		select {
		case channel <- jsonData:
		case <-time.After(sendTimeout):
			// Timeout - client might be disconnected
			s.logger.Warn("Timeout sending", eventType, "event to SSE client")
		}
	}
}

// ClientCount returns the number of connected clients
func (s *SSEManager) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()

	return len(s.clients)
}

// Close disconnects every client
func (s *SSEManager) Close() {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for channel := range s.clients {
		close(channel)
		delete(s.clients, channel)
	}
}
