package timeline

import (
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

// reconcileWindow bounds the fallback match for confirmations that arrive
// without a tempId (another session of the same user, legacy senders).
const reconcileWindow = 10 * time.Second

// Entry is one timeline slot: either a local optimistic record still waiting
// for the server (Pending, addressed by tempId) or a confirmed one.
type Entry struct {
	Pending bool
	Msg     *models.Message
}

// Timeline holds one room's message list and reconciles server events
// against local optimistic writes. Positions are stable: confirmation
// replaces in place, deletion is soft.
type Timeline struct {
	roomID string

	mu      sync.Mutex
	entries []*Entry
	index   map[string]int // message id or tempId -> position
	now     func() time.Time
}

func New(roomID string) *Timeline {
	return &Timeline{
		roomID: roomID,
		index:  make(map[string]int),
		now:    time.Now,
	}
}

func (t *Timeline) RoomID() string { return t.roomID }

// AppendLocal inserts an optimistic record. Its id is the tempId until the
// server confirms it.
func (t *Timeline) AppendLocal(m *models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = t.now()
	}
	t.index[m.TempID] = len(t.entries)
	t.entries = append(t.entries, &Entry{Pending: true, Msg: m})
}

// ApplyHistory replaces the timeline with a fetched page. Pending entries
// are kept at the tail so an in-flight send is not lost by a room refresh.
func (t *Timeline) ApplyHistory(msgs []*models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []*Entry
	for _, e := range t.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}
	t.entries = t.entries[:0]
	t.index = make(map[string]int, len(msgs)+len(pending))
	for _, m := range msgs {
		t.index[m.ID] = len(t.entries)
		t.entries = append(t.entries, &Entry{Msg: m})
	}
	for _, e := range pending {
		t.index[e.Msg.TempID] = len(t.entries)
		t.entries = append(t.entries, e)
	}
}

// ApplyMessage merges a server message event. Order of checks matters:
// duplicate id, tempId match, recency heuristic, then genuinely new.
func (t *Timeline) ApplyMessage(m *models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[m.ID]; ok {
		return
	}
	if m.TempID != "" {
		if pos, ok := t.index[m.TempID]; ok {
			t.confirmAt(pos, m)
			return
		}
	}
	if pos, ok := t.heuristicMatch(m); ok {
		t.confirmAt(pos, m)
		return
	}
	t.index[m.ID] = len(t.entries)
	t.entries = append(t.entries, &Entry{Msg: m})
}

// confirmAt swaps the optimistic record for the authoritative one, same
// position.
func (t *Timeline) confirmAt(pos int, m *models.Message) {
	old := t.entries[pos]
	if old.Msg.TempID != "" {
		delete(t.index, old.Msg.TempID)
	}
	t.entries[pos] = &Entry{Msg: m}
	t.index[m.ID] = pos
}

// heuristicMatch finds a recent pending entry with the same author and exact
// text, so a confirmation without a tempId does not render twice.
func (t *Timeline) heuristicMatch(m *models.Message) (int, bool) {
	cutoff := t.now().Add(-reconcileWindow)
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.Msg.CreatedAt.Before(cutoff) {
			break
		}
		if !e.Pending {
			continue
		}
		if e.Msg.AuthorID == m.AuthorID && e.Msg.Content == m.Content {
			return i, true
		}
	}
	return 0, false
}

// ApplyUpdate is a no-op for ids not present (including still-pending
// tempIds; the server will have dropped the edit too).
func (t *Timeline) ApplyUpdate(id, text string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[id]
	if !ok || t.entries[pos].Pending {
		return
	}
	m := t.entries[pos].Msg
	m.Content = text
	m.UpdatedAt = &at
}

func (t *Timeline) ApplyDelete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[id]
	if !ok || t.entries[pos].Pending {
		return
	}
	m := t.entries[pos].Msg
	m.IsDeleted = true
	m.Content = ""
	m.MediaURL = ""
	m.Reactions = nil
}

// ApplyReactions replaces the message's reaction map wholesale; the server
// broadcasts full state, not deltas.
func (t *Timeline) ApplyReactions(id string, reactions map[string][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[id]
	if !ok || t.entries[pos].Pending {
		return
	}
	t.entries[pos].Msg.Reactions = reactions
}

func (t *Timeline) ApplyReceipts(sum *models.ReceiptSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[sum.MessageID]
	if !ok || t.entries[pos].Pending {
		return
	}
	t.entries[pos].Msg.Receipts = sum
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// PositionOf reports the list position for a message id or tempId.
func (t *Timeline) PositionOf(id string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.index[id]
	return pos, ok
}

// Messages returns a snapshot in list order.
func (t *Timeline) Messages() []*models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.Message, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Msg)
	}
	return out
}
