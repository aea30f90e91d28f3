// Package notify implements NotificationHub: a registry of connected
// clients keyed by participant id and best-effort fan-out of message,
// dialogue-update, and streaming-chunk events over WebSocket, using a
// broadcast/bounded-queue pattern carried over from an SSE hub.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// EventType names the three event kinds the hub fans out.
type EventType string

const (
	EventMessage        EventType = "message"
	EventDialogueUpdate EventType = "dialogue_update"
	EventStreamChunk    EventType = "stream_chunk"
)

// Frame is the literal wire shape pushed to every connected client.
type Frame struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

const outboundBuffer = 32

// Client is one connected participant's outbound channel.
type Client struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	conn      *websocket.Conn
	outbound  chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Hub is the process-wide client registry and fan-out point.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]bool // keyed by participant (user/ai) id
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[*Client]bool), log: log.With("component", "NotificationHub")}
}

// Register wires conn as a client listening for participantID's events,
// and starts its write pump. It blocks until the connection closes.
func (h *Hub) Register(participantID uuid.UUID, conn *websocket.Conn) {
	client := &Client{
		ID:       uuid.New(),
		UserID:   participantID,
		conn:     conn,
		outbound: make(chan Frame, outboundBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.clients[participantID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[participantID] = set
	}
	set[client] = true
	h.mu.Unlock()

	h.log.Debug("client registered", "client_id", client.ID, "participant_id", participantID)
	h.pump(client)
}

func (h *Hub) pump(client *Client) {
	defer h.remove(client)
	for {
		select {
		case <-client.done:
			return
		case frame, ok := <-client.outbound:
			if !ok {
				return
			}
			if err := client.conn.WriteJSON(frame); err != nil {
				h.log.Debug("write failed, disconnecting client", "client_id", client.ID, "error", err)
				return
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if set, ok := h.clients[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.mu.Unlock()
	client.closeOnce.Do(func() { close(client.done) })
	_ = client.conn.Close()
}

// Publish fans frame out to every client registered under participantID.
// Delivery is best-effort: a client whose outbound buffer is full is
// disconnected rather than allowed to slow the publisher.
func (h *Hub) Publish(participantID uuid.UUID, frame Frame) {
	h.mu.RLock()
	set := h.clients[participantID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.outbound <- frame:
		default:
			h.log.Warn("dropping notification; outbound buffer full, disconnecting", "client_id", c.ID)
			h.remove(c)
		}
	}
}

// PublishMessage is a convenience wrapper emitting an EventMessage frame.
func (h *Hub) PublishMessage(participantID uuid.UUID, payload any) {
	h.Publish(participantID, Frame{Type: EventMessage, Data: payload, Timestamp: time.Now().UTC()})
}

// PublishDialogueUpdate emits an EventDialogueUpdate frame.
func (h *Hub) PublishDialogueUpdate(participantID uuid.UUID, payload any) {
	h.Publish(participantID, Frame{Type: EventDialogueUpdate, Data: payload, Timestamp: time.Now().UTC()})
}

// PublishStreamChunk emits an EventStreamChunk frame.
func (h *Hub) PublishStreamChunk(participantID uuid.UUID, payload any) {
	h.Publish(participantID, Frame{Type: EventStreamChunk, Data: payload, Timestamp: time.Now().UTC()})
}

// ConnectedCount reports how many clients are registered for participantID,
// for tests and diagnostics.
func (h *Hub) ConnectedCount(participantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[participantID])
}
