package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

type fakeMessageRepo struct {
	mu         sync.Mutex
	byID       map[string]*models.Message
	order      []string
	failInsert bool
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: map[string]*models.Message{}}
}

func copyMessage(m *models.Message) *models.Message {
	cp := *m
	if m.Reactions != nil {
		cp.Reactions = make(map[string][]string, len(m.Reactions))
		for k, v := range m.Reactions {
			cp.Reactions[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

func (r *fakeMessageRepo) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsert {
		return errors.New("storage down")
	}
	r.byID[m.ID] = copyMessage(m)
	r.order = append(r.order, m.ID)
	return nil
}

func (r *fakeMessageRepo) FindByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *fakeMessageRepo) ListByRoom(_ context.Context, roomID string, limit int64, _ time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, id := range r.order {
		m := r.byID[id]
		if m.RoomID == roomID {
			out = append(out, copyMessage(m))
		}
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) ListForeignIDs(_ context.Context, roomID, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range r.order {
		m := r.byID[id]
		if m.RoomID == roomID && !m.IsDeleted && m.AuthorID != userID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, id, text string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.IsDeleted {
		return repository.ErrNotFound
	}
	m.Content = text
	m.UpdatedAt = &at
	return nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsDeleted = true
	m.Content = ""
	m.MediaURL = ""
	return nil
}

func (r *fakeMessageRepo) ToggleReaction(_ context.Context, id, emoji, userID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.IsDeleted {
		return nil, repository.ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	reactors := m.Reactions[emoji]
	removed := false
	for i, u := range reactors {
		if u == userID {
			reactors = append(reactors[:i], reactors[i+1:]...)
			removed = true
			break
		}
	}
	switch {
	case removed && len(reactors) == 0:
		delete(m.Reactions, emoji)
	case removed:
		m.Reactions[emoji] = reactors
	default:
		m.Reactions[emoji] = append(reactors, userID)
	}
	return copyMessage(m), nil
}

type fakeRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	touched []time.Time
}

func newFakeRoomRepo(rooms ...*models.Room) *fakeRoomRepo {
	r := &fakeRoomRepo{rooms: map[string]*models.Room{}}
	for _, room := range rooms {
		r.rooms[room.ID] = room
	}
	return r
}

func (r *fakeRoomRepo) FindByID(_ context.Context, id string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	cp.Members = append([]string(nil), room.Members...)
	return &cp, nil
}

func (r *fakeRoomRepo) AddMember(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	if !room.HasMember(userID) {
		room.Members = append(room.Members, userID)
	}
	return nil
}

func (r *fakeRoomRepo) TouchActivity(_ context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.LastActivityAt = at
	}
	r.touched = append(r.touched, at)
	return nil
}

func (r *fakeRoomRepo) SetPinned(_ context.Context, roomID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	room.PinnedMessageID = messageID
	return nil
}

func (r *fakeRoomRepo) ClearPinned(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.PinnedMessageID = ""
	}
	return nil
}

func (r *fakeRoomRepo) ClearPinnedIf(_ context.Context, roomID, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok || room.PinnedMessageID != messageID {
		return false, nil
	}
	room.PinnedMessageID = ""
	return true, nil
}

// fakeReceiptRepo mirrors the mongo upsert semantics: delivered_at and
// seen_at are set once, never moved.
type fakeReceiptRepo struct {
	mu   sync.Mutex
	rows map[string]map[string]*models.Receipt // messageID -> userID -> row
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{rows: map[string]map[string]*models.Receipt{}}
}

func (r *fakeReceiptRepo) upsert(messageIDs []string, userID, userName string, at time.Time, seen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range messageIDs {
		if r.rows[id] == nil {
			r.rows[id] = map[string]*models.Receipt{}
		}
		row, ok := r.rows[id][userID]
		if !ok {
			row = &models.Receipt{MessageID: id, UserID: userID, UserName: userName, DeliveredAt: at}
			r.rows[id][userID] = row
		}
		if seen && row.SeenAt == nil {
			t := at
			row.SeenAt = &t
		}
	}
}

func (r *fakeReceiptRepo) UpsertDelivered(_ context.Context, ids []string, userID, userName string, at time.Time) error {
	r.upsert(ids, userID, userName, at, false)
	return nil
}

func (r *fakeReceiptRepo) UpsertSeen(_ context.Context, ids []string, userID, userName string, at time.Time) error {
	r.upsert(ids, userID, userName, at, true)
	return nil
}

func (r *fakeReceiptRepo) SummarizeByMessageIDs(_ context.Context, ids []string) (map[string]*models.ReceiptSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]*models.ReceiptSummary{}
	for _, id := range ids {
		rows, ok := r.rows[id]
		if !ok {
			continue
		}
		sum := &models.ReceiptSummary{MessageID: id}
		for _, row := range rows {
			sum.DeliveredCount++
			if row.SeenAt != nil {
				sum.SeenCount++
				sum.SeenBy = append(sum.SeenBy, row.UserName)
			}
		}
		out[id] = sum
	}
	return out, nil
}

func (r *fakeReceiptRepo) row(messageID, userID string) *models.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rows, ok := r.rows[messageID]; ok {
		return rows[userID]
	}
	return nil
}

type fanoutEvent struct {
	Scope   string
	Room    string
	User    string
	Except  string
	Event   string
	Payload any
}

type fakeFanout struct {
	mu     sync.Mutex
	events []fanoutEvent
}

func (f *fakeFanout) ToRoom(roomID, event string, payload any) {
	f.record(fanoutEvent{Scope: "room", Room: roomID, Event: event, Payload: payload})
}

func (f *fakeFanout) ToRoomExcept(roomID, exceptUserID, event string, payload any) {
	f.record(fanoutEvent{Scope: "room", Room: roomID, Except: exceptUserID, Event: event, Payload: payload})
}

func (f *fakeFanout) ToUser(userID, event string, payload any) bool {
	f.record(fanoutEvent{Scope: "user", User: userID, Event: event, Payload: payload})
	return true
}

func (f *fakeFanout) ToAll(event string, payload any) {
	f.record(fanoutEvent{Scope: "all", Event: event, Payload: payload})
}

func (f *fakeFanout) record(ev fanoutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeFanout) byEvent(event string) []fanoutEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fanoutEvent
	for _, ev := range f.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}
