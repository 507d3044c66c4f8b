package chatws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type dropRecorder interface {
	EventDropped()
}

// Hub fans session events out to every connection of both participants.
// A single goroutine owns the client map, so events leave in publish order.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.SessionEvent
	direct     chan directMessage
	done       chan struct{}
	drops      dropRecorder
}

type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type sessionCommander interface {
	Pause(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Resume(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Stop(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Query(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
}

type directMessage struct {
	client  *Client
	payload []byte
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewHub(drops dropRecorder) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.SessionEvent, 256),
		direct:     make(chan directMessage, 64),
		done:       make(chan struct{}),
		drops:      drops,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		case msg := <-h.direct:
			h.sendToClient(msg.client, msg.payload)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for both participants. It blocks only while the
// queue is full and returns immediately once the hub has stopped.
func (h *Hub) Publish(event models.SessionEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

func (h *Hub) deliver(event models.SessionEvent) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("session_id", event.SessionID).Msg("hub: encode event")
		return
	}

	h.sendToUser(event.UserID, encoded)
	if event.AdvisorID != "" && event.AdvisorID != event.UserID {
		h.sendToUser(event.AdvisorID, encoded)
	}
}

// sendToUser drops the event for any connection whose buffer is full and
// disconnects it; the client resynchronises with a sync request.
func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
			if h.drops != nil {
				h.drops.EventDropped()
			}
			log.Warn().Str("user_id", userID).Str("client_id", client.ID).Msg("hub: client buffer full, dropping connection")
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// sendToClient delivers to one connection if it is still registered.
func (h *Hub) sendToClient(client *Client, payload []byte) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, registered := set[client]; !registered {
		return
	}
	select {
	case client.send <- payload:
	default:
		delete(set, client)
		close(client.send)
		if len(set) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (c *Client) ReadPump(service sessionCommander) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(service, payload)
	}
}

func (c *Client) handle(service sessionCommander, payload []byte) {
	var incoming inboundMessage
	if err := json.Unmarshal(payload, &incoming); err != nil {
		writeError(c, "", "invalid message payload")
		return
	}
	sessionID := strings.TrimSpace(incoming.SessionID)
	if sessionID == "" {
		writeError(c, "", "session_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		state *models.SessionState
		err   error
	)
	switch incoming.Type {
	case "pause":
		state, err = service.Pause(ctx, c.userID, sessionID)
	case "resume":
		state, err = service.Resume(ctx, c.userID, sessionID)
	case "stop":
		state, err = service.Stop(ctx, c.userID, sessionID)
	case "sync":
		state, err = service.Query(ctx, c.userID, sessionID)
	default:
		writeError(c, sessionID, "unsupported message type")
		return
	}
	if err != nil {
		writeError(c, sessionID, err.Error())
		return
	}
	// Broadcast events carry the change itself; the requester also gets the full state.
	writeState(c, state)
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeState(client *Client, state *models.SessionState) {
	writeEvent(client, models.SessionEvent{
		Type:             models.EventState,
		SessionID:        state.SessionID,
		Seq:              state.Seq,
		RemainingSeconds: state.RemainingSeconds,
		Reason:           state.EndReason,
		State:            state,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(client *Client, sessionID string, message string) {
	writeEvent(client, models.SessionEvent{
		Type:      models.EventError,
		SessionID: sessionID,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeEvent(client *Client, event models.SessionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case client.hub.direct <- directMessage{client: client, payload: payload}:
	case <-client.hub.done:
	}
}
