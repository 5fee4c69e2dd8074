package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Handler consumes one server event.
type Handler func(env *ws.Envelope)

// Client is the persistent, authenticated, reconnecting event channel to the
// server. All room and call traffic flows through it.
type Client struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.SugaredLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]Handler
	room     string // current content room, rejoined after reconnect
	closed   bool

	writeMu sync.Mutex
}

// New takes the full ws URL including the auth token query parameter.
func New(url string, log *zap.SugaredLogger) *Client {
	return &Client{
		url:      url,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for an event type. Must be called before Connect.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop()
	return nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.reconnect()
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *ws.Envelope) {
	c.mu.Lock()
	h := c.handlers[env.Type]
	c.mu.Unlock()
	if h != nil {
		h(env)
	}
}

// reconnect redials with backoff and re-establishes the room subscription.
// It deliberately does not mark anything seen; only an explicit room open
// does that.
func (c *Client) reconnect() {
	backoff := time.Second
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		room := c.room
		c.mu.Unlock()

		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warnw("reconnect failed", "err", err)
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		if room != "" {
			_ = c.Emit(ws.EvJoinRoom, room, nil)
		}
		go c.readLoop()
		return
	}
}

func (c *Client) Emit(event, roomID string, payload any) error {
	env, err := ws.NewEnvelope(event, roomID, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
	return c.Emit(ws.EvJoinRoom, roomID, nil)
}

func (c *Client) MarkSeen(roomID string) error {
	return c.Emit(ws.EvMarkSeen, roomID, nil)
}

// SendMessage emits the message with a fresh tempId and returns it so the
// caller can insert the optimistic record under that id.
func (c *Client) SendMessage(roomID string, p ws.SendMessagePayload) (string, error) {
	if p.TempID == "" {
		p.TempID = uuid.NewString()
	}
	return p.TempID, c.Emit(ws.EvSendMessage, roomID, p)
}

func (c *Client) EditMessage(id, text string) error {
	return c.Emit(ws.EvEditMessage, "", ws.EditMessagePayload{ID: id, Content: text})
}

func (c *Client) DeleteMessage(id string) error {
	return c.Emit(ws.EvDeleteMessage, "", ws.DeleteMessagePayload{ID: id})
}

func (c *Client) ToggleReaction(messageID, emoji string) error {
	return c.Emit(ws.EvToggleReaction, "", ws.ToggleReactionPayload{MessageID: messageID, Emoji: emoji})
}

func (c *Client) PinMessage(roomID, messageID string) error {
	return c.Emit(ws.EvPinMessage, roomID, ws.PinMessagePayload{MessageID: messageID})
}

func (c *Client) UnpinMessage(roomID string) error {
	return c.Emit(ws.EvUnpinMessage, roomID, nil)
}

func (c *Client) TypingStart(roomID string) error {
	return c.Emit(ws.EvTypingStart, roomID, nil)
}

func (c *Client) TypingStop(roomID string) error {
	return c.Emit(ws.EvTypingStop, roomID, nil)
}

func (c *Client) StartCall(roomID string, isVideo bool) error {
	return c.Emit(ws.EvCallStart, roomID, ws.CallStartPayload{RoomID: roomID, IsVideo: isVideo})
}

func (c *Client) AcceptCall(roomID, callerID string, isVideo bool) error {
	return c.Emit(ws.EvCallAccept, roomID, ws.CallAcceptPayload{RoomID: roomID, CallerID: callerID, IsVideo: isVideo})
}

func (c *Client) DeclineCall(roomID, callerID string) error {
	return c.Emit(ws.EvCallDecline, roomID, ws.CallAcceptPayload{RoomID: roomID, CallerID: callerID})
}

func (c *Client) SendCallSignal(event string, p ws.CallSignalPayload) error {
	return c.Emit(event, p.RoomID, p)
}

// EndCall with a target tears down one mesh link; without, it ends the call
// for the whole room.
func (c *Client) EndCall(roomID, targetUserID string) error {
	return c.Emit(ws.EvCallEnd, roomID, ws.CallEndPayload{RoomID: roomID, TargetUserID: targetUserID})
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
