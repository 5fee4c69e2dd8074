package timeline

import (
	"encoding/json"
	"sync"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Store owns the client's per-room state: the active room's timeline and
// pin pointers. Exactly one room's history is loaded at a time; switching
// rooms makes any in-flight fetch for the old room stale.
type Store struct {
	mu      sync.Mutex
	current *Timeline
	pinned  map[string]string // roomID -> pinned message id
}

func NewStore() *Store {
	return &Store{pinned: make(map[string]string)}
}

// SwitchRoom resets local state to a fresh timeline for roomID.
func (s *Store) SwitchRoom(roomID string) *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = New(roomID)
	return s.current
}

func (s *Store) Current() *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ApplyHistory loads a fetched page, discarding results tagged with a room
// the user has already navigated away from. Reports whether it applied.
func (s *Store) ApplyHistory(roomID string, msgs []*models.Message) bool {
	t := s.Current()
	if t == nil || t.RoomID() != roomID {
		return false
	}
	t.ApplyHistory(msgs)
	return true
}

func (s *Store) PinnedMessageID(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned[roomID]
}

// Apply routes a server envelope into local state. Unknown types are
// ignored; call events are the mesh manager's business.
func (s *Store) Apply(env *ws.Envelope) {
	t := s.Current()
	switch env.Type {
	case ws.EvMessage:
		if t == nil || env.RoomID != t.RoomID() {
			return
		}
		var m models.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return
		}
		t.ApplyMessage(&m)
	case ws.EvMessageUpdated:
		// global broadcast; applies only if the message is in view
		var p ws.MessageUpdatedPayload
		if t == nil || json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		t.ApplyUpdate(p.ID, p.Content, p.UpdatedAt)
	case ws.EvMessageDeleted:
		var p ws.MessageDeletedPayload
		if t == nil || json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		t.ApplyDelete(p.ID)
	case ws.EvReactionUpdated:
		var p ws.ReactionUpdatedPayload
		if t == nil || json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		t.ApplyReactions(p.MessageID, p.Reactions)
	case ws.EvMessageReceiptUpdated:
		var sum models.ReceiptSummary
		if t == nil || json.Unmarshal(env.Payload, &sum) != nil {
			return
		}
		t.ApplyReceipts(&sum)
	case ws.EvChatPinnedUpdated:
		var p ws.PinnedUpdatedPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		s.mu.Lock()
		if p.PinnedMessageID == "" {
			delete(s.pinned, p.RoomID)
		} else {
			s.pinned[p.RoomID] = p.PinnedMessageID
		}
		s.mu.Unlock()
	}
}

// SearchGuard serializes search responses: results are admitted only for
// the newest issued token, so a slow stale response cannot overwrite a
// newer one.
type SearchGuard struct {
	mu     sync.Mutex
	issued uint64
}

// Next issues a token for a new search request.
func (g *SearchGuard) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return g.issued
}

// Admit reports whether a response holding token may be applied.
func (g *SearchGuard) Admit(token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return token == g.issued
}
