package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	realtimeHandshakeTimeout = 10 * time.Second
	realtimeHeartbeat        = 30 * time.Second
)

// RealtimeClient speaks the Supabase Realtime protocol (Phoenix channels)
// over a single websocket. The operation feed bridge subscribes it to
// postgres_changes on the token_operations table.
type RealtimeClient struct {
	mu       sync.RWMutex
	url      string
	apiKey   string
	conn     *websocket.Conn
	channels map[string]*Channel
	handlers map[string][]EventHandler
	done     chan struct{}
	ref      int
}

// EventHandler receives dispatched realtime events.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is one decoded Phoenix frame.
type RealtimeEvent struct {
	Type    string         `json:"type"`
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
	JoinRef string         `json:"join_ref,omitempty"`
}

// Channel is one joined topic on the realtime socket.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joined  bool
	joinRef string
}

// NewRealtimeClient builds a client for the project's realtime endpoint.
// The connection is not opened until Connect.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	ws := supabaseURL
	switch {
	case strings.HasPrefix(ws, "https"):
		ws = "wss" + ws[len("https"):]
	case strings.HasPrefix(ws, "http"):
		ws = "ws" + ws[len("http"):]
	}
	ws += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      ws,
		apiKey:   apiKey,
		channels: make(map[string]*Channel),
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
}

// Connect opens the websocket and starts the read and heartbeat loops.
// Connecting twice is a no-op.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: realtimeHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop()
	go r.heartbeatLoop()
	return nil
}

// Disconnect sends a close frame and tears the socket down.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	close(r.done)

	writeErr := r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.conn.Close()
	r.conn = nil
	if writeErr != nil {
		return fmt.Errorf("close message: %w", writeErr)
	}
	return nil
}

// Channel returns the channel for topic, creating it unjoined if needed.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: r, topic: topic}
	r.channels[topic] = ch
	return ch
}

func (r *RealtimeClient) nextRefLocked() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

// Subscribe joins the channel's topic. Joining twice is a no-op.
func (c *Channel) Subscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if c.joined {
		return nil
	}

	ref := c.client.nextRefLocked()
	c.joinRef = ref
	join := map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := c.client.conn.WriteJSON(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	c.joined = true
	return nil
}

// Unsubscribe leaves the topic and forgets the channel.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	if !c.joined {
		return nil
	}

	leave := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      c.client.nextRefLocked(),
		"join_ref": c.joinRef,
	}
	if err := c.client.conn.WriteJSON(leave); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}

	c.joined = false
	delete(c.client.channels, c.topic)
	return nil
}

// On registers a handler for one event name on this channel's topic.
func (c *Channel) On(event string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	key := c.topic + ":" + event
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

// OnInsert registers a handler for INSERT rows.
func (c *Channel) OnInsert(handler EventHandler) *Channel { return c.On("INSERT", handler) }

// OnUpdate registers a handler for UPDATE rows.
func (c *Channel) OnUpdate(handler EventHandler) *Channel { return c.On("UPDATE", handler) }

// OnDelete registers a handler for DELETE rows.
func (c *Channel) OnDelete(handler EventHandler) *Channel { return c.On("DELETE", handler) }

// OnAll registers a handler for every row change.
func (c *Channel) OnAll(handler EventHandler) *Channel {
	c.On("INSERT", handler)
	c.On("UPDATE", handler)
	c.On("DELETE", handler)
	return c
}

func (r *RealtimeClient) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var event RealtimeEvent
		if err := json.Unmarshal(frame, &event); err != nil {
			continue
		}
		r.dispatch(&event)
	}
}

func (r *RealtimeClient) dispatch(event *RealtimeEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// postgres_changes frames carry the row event type inside the payload
	name := event.Event
	if inner, ok := event.Payload["type"].(string); ok {
		name = inner
	}

	for _, handler := range r.handlers[event.Topic+":"+name] {
		go handler(event)
	}
}

func (r *RealtimeClient) heartbeatLoop() {
	ticker := time.NewTicker(realtimeHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				beat := map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     r.nextRefLocked(),
				}
				r.conn.WriteJSON(beat)
			}
			r.mu.Unlock()
		}
	}
}

// PostgresChangesConfig selects which row changes to watch.
type PostgresChangesConfig struct {
	// Event is INSERT, UPDATE, DELETE or "*". Defaults to "*".
	Event  string
	Schema string
	Table  string
	// Filter narrows rows, e.g. "status=eq.submitted".
	Filter string
}

// SubscribeToPostgresChanges joins the topic for the configured table and
// registers handler for the selected row events.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler EventHandler) (*Channel, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	ch := r.Channel(topic)
	switch cfg.Event {
	case "*":
		ch.OnAll(handler)
	case "INSERT":
		ch.OnInsert(handler)
	case "UPDATE":
		ch.OnUpdate(handler)
	case "DELETE":
		ch.OnDelete(handler)
	}

	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}
