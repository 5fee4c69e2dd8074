package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub is the presence registry and room subscription manager. One instance
// per process; all connection handlers share it.
type Hub struct {
	mu         sync.RWMutex
	users      map[string]*Client          // userID -> live connection, last-conn-wins
	rooms      map[string]map[*Client]bool // roomID -> subscribed connections
	clientRoom map[*Client]string          // connection -> its one content room

	nodeID string
	relay  *Relay
	log    *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		users:      make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		clientRoom: make(map[*Client]string),
		nodeID:     uuid.NewString(),
		log:        log,
	}
}

// AttachRelay enables cross-node fan-out over redis pub/sub. Remote frames
// are delivered locally; frames published by this node are skipped.
func (h *Hub) AttachRelay(r *Relay) {
	h.relay = r
	r.Listen(h.nodeID, h.deliverFrame)
}

// Register makes c the live connection for its user. A reconnecting user
// invalidates their previous handle; the stale connection is closed and its
// room subscriptions dropped.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev := h.users[c.User.ID]
	h.users[c.User.ID] = c
	if prev != nil && prev != c {
		h.removeLocked(prev)
	}
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.Close()
	}
}

// Unregister drops c if it is still the user's current connection. Room
// subscriptions go with it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.users[c.User.ID]; ok && cur == c {
		delete(h.users, c.User.ID)
	}
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if roomID, ok := h.clientRoom[c]; ok {
		if subs := h.rooms[roomID]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
		delete(h.clientRoom, c)
	}
}

// JoinRoom subscribes c to roomID. A connection holds at most one content
// room subscription; any previous one is dropped first.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	h.clientRoom[c] = roomID
}

func (h *Hub) RoomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRoom[c]
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[userID]
	return ok
}

// ToRoom delivers an event to every connection subscribed to roomID.
func (h *Hub) ToRoom(roomID, event string, payload any) {
	h.fanout("room", roomID, "", "", event, roomID, payload)
}

// ToRoomExcept delivers to the room's subscribers except one user. Used for
// call signaling and typing, where the originator must not hear itself.
func (h *Hub) ToRoomExcept(roomID, exceptUserID, event string, payload any) {
	h.fanout("room", roomID, "", exceptUserID, event, roomID, payload)
}

// ToUser delivers only to that user's registered connection, independent of
// room subscription. Reports false when the user has no live connection on
// this node; with a relay attached the user may live on another node, so
// delivery is assumed and the frame is published regardless.
func (h *Hub) ToUser(userID, event string, payload any) bool {
	env, err := NewEnvelope(event, "", payload)
	if err != nil {
		h.log.Errorw("marshal envelope", "event", event, "err", err)
		return false
	}
	b, _ := json.Marshal(env)

	h.mu.RLock()
	c, ok := h.users[userID]
	h.mu.RUnlock()

	delivered := false
	if ok {
		delivered = c.Enqueue(b)
	}
	h.publish("user", "", userID, "", b)
	return delivered || h.relay != nil
}

// ToAll delivers to every registered connection. Edit and delete events use
// this scope so reply previews stay current across rooms.
func (h *Hub) ToAll(event string, payload any) {
	h.fanout("all", "", "", "", event, "", payload)
}

func (h *Hub) fanout(scope, roomID, userID, except, event, envRoom string, payload any) {
	env, err := NewEnvelope(event, envRoom, payload)
	if err != nil {
		h.log.Errorw("marshal envelope", "event", event, "err", err)
		return
	}
	b, _ := json.Marshal(env)
	h.deliverLocal(scope, roomID, userID, except, b)
	h.publish(scope, roomID, userID, except, b)
}

func (h *Hub) deliverLocal(scope, roomID, userID, except string, b []byte) {
	h.mu.RLock()
	var targets []*Client
	switch scope {
	case "room":
		for c := range h.rooms[roomID] {
			if except != "" && c.User.ID == except {
				continue
			}
			targets = append(targets, c)
		}
	case "user":
		if c, ok := h.users[userID]; ok {
			targets = append(targets, c)
		}
	case "all":
		for _, c := range h.users {
			if except != "" && c.User.ID == except {
				continue
			}
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Enqueue(b) {
			h.log.Warnw("slow consumer, frame dropped", "user", c.User.ID)
		}
	}
}

func (h *Hub) publish(scope, roomID, userID, except string, env []byte) {
	if h.relay == nil {
		return
	}
	frame := relayFrame{
		Node:   h.nodeID,
		Scope:  scope,
		Room:   roomID,
		User:   userID,
		Except: except,
		Env:    env,
	}
	if err := h.relay.Publish(frame); err != nil {
		h.log.Warnw("relay publish", "err", err)
	}
}

func (h *Hub) deliverFrame(f relayFrame) {
	h.deliverLocal(f.Scope, f.Room, f.User, f.Except, f.Env)
}
