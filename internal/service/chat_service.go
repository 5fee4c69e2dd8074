package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

var (
	// ErrEmptyMessage: neither text nor a media reference; rejected before
	// persistence and surfaced to the sender only.
	ErrEmptyMessage = errors.New("empty message")
	ErrPrivateRoom  = errors.New("room is private")
)

// Fanout is the subset of hub addressing the services need.
type Fanout interface {
	ToRoom(roomID, event string, payload any)
	ToRoomExcept(roomID, exceptUserID, event string, payload any)
	ToUser(userID, event string, payload any) bool
	ToAll(event string, payload any)
}

// EventSink receives pipeline mutations for downstream consumers. Publish
// failures never fail the user operation.
type EventSink interface {
	Publish(ctx context.Context, eventType, roomID string, payload any) error
}

type SendInput struct {
	RoomID        string
	AuthorID      string
	TempID        string
	Kind          models.MessageKind
	Content       string
	MediaURL      string
	ReplyToID     string
	IsForwarded   bool
	ForwardedFrom string
}

// ChatService is the message pipeline and pin controller: the single
// authoritative writer of message state.
type ChatService struct {
	messages repository.MessageRepository
	rooms    repository.RoomRepository
	receipts repository.ReceiptRepository
	fanout   Fanout
	sink     EventSink
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewChatService(
	messages repository.MessageRepository,
	rooms repository.RoomRepository,
	receipts repository.ReceiptRepository,
	fanout Fanout,
	sink EventSink,
	log *zap.SugaredLogger,
) *ChatService {
	return &ChatService{
		messages: messages,
		rooms:    rooms,
		receipts: receipts,
		fanout:   fanout,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
}

// Send validates, persists and fans out a new message. The broadcast echoes
// the sender's tempId so every client, sender included, can reconcile its
// optimistic copy against the confirmed record.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	if strings.TrimSpace(in.Content) == "" && in.MediaURL == "" {
		return nil, ErrEmptyMessage
	}
	kind := in.Kind
	if kind == "" {
		kind = models.KindText
	}
	m := &models.Message{
		ID:            uuid.NewString(),
		TempID:        in.TempID,
		RoomID:        in.RoomID,
		AuthorID:      in.AuthorID,
		Kind:          kind,
		Content:       in.Content,
		MediaURL:      in.MediaURL,
		ReplyToID:     in.ReplyToID,
		IsForwarded:   in.IsForwarded,
		ForwardedFrom: in.ForwardedFrom,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		// Availability over strict consistency at the pipeline's outer
		// edge: fan out the sender's payload as-is so subscribers are not
		// left silently inconsistent.
		s.log.Errorw("persist message, degrading to best-effort fan-out", "room", in.RoomID, "err", err)
		s.fanout.ToRoom(in.RoomID, ws.EvMessage, m)
		return m, nil
	}
	if err := s.rooms.TouchActivity(ctx, in.RoomID, m.CreatedAt); err != nil {
		s.log.Warnw("touch room activity", "room", in.RoomID, "err", err)
	}
	s.fanout.ToRoom(in.RoomID, ws.EvMessage, m)
	s.publish(ctx, "message.sent", in.RoomID, m)
	return m, nil
}

// Edit mutates message text. An unknown id is dropped silently: the usual
// cause is a client editing before its send was confirmed, still holding a
// tempId, and it retries once the real id is known.
func (s *ChatService) Edit(ctx context.Context, id, text string) error {
	m, err := s.messages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debugw("edit for unknown message id, dropped", "id", id)
			return nil
		}
		return err
	}
	if m.IsDeleted {
		s.log.Debugw("edit for deleted message, dropped", "id", id)
		return nil
	}
	at := s.now().UTC()
	if err := s.messages.UpdateContent(ctx, id, text, at); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// the message was deleted between the read and the write; the
			// repository filter refused the edit
			s.log.Debugw("edit lost to concurrent delete, dropped", "id", id)
			return nil
		}
		return err
	}
	s.fanout.ToAll(ws.EvMessageUpdated, ws.MessageUpdatedPayload{ID: id, Content: text, UpdatedAt: at})
	s.publish(ctx, "message.updated", m.RoomID, ws.MessageUpdatedPayload{ID: id, Content: text, UpdatedAt: at})
	return nil
}

// Delete soft-deletes: the id and room linkage survive for reply chains,
// content and media are cleared. If the message was the room's pin, the pin
// is cleared first so it never references a deleted message.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	m, err := s.messages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debugw("delete for unknown message id, dropped", "id", id)
			return nil
		}
		return err
	}
	if m.IsDeleted {
		return nil
	}
	cleared, err := s.rooms.ClearPinnedIf(ctx, m.RoomID, id)
	if err != nil {
		return err
	}
	if err := s.messages.SoftDelete(ctx, id); err != nil {
		return err
	}
	if cleared {
		s.fanout.ToRoom(m.RoomID, ws.EvChatPinnedUpdated, ws.PinnedUpdatedPayload{RoomID: m.RoomID})
	}
	s.fanout.ToAll(ws.EvMessageDeleted, ws.MessageDeletedPayload{ID: id})
	s.publish(ctx, "message.deleted", m.RoomID, ws.MessageDeletedPayload{ID: id})
	return nil
}

// ToggleReaction adds userID as a reactor for emoji, or removes them if
// already present. The toggle itself is a per-key write in the repository so
// concurrent reactors serialize there. The full updated map is broadcast;
// clients replace, not merge.
func (s *ChatService) ToggleReaction(ctx context.Context, messageID, emoji, userID string) error {
	m, err := s.messages.ToggleReaction(ctx, messageID, emoji, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debugw("reaction for unknown or deleted message, dropped", "id", messageID)
			return nil
		}
		return err
	}
	s.fanout.ToRoom(m.RoomID, ws.EvReactionUpdated, ws.ReactionUpdatedPayload{MessageID: messageID, Reactions: m.Reactions})
	return nil
}

// Pin makes messageID the room's single pinned message, replacing any
// previous pin.
func (s *ChatService) Pin(ctx context.Context, roomID, messageID string) error {
	m, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debugw("pin for unknown message id, dropped", "id", messageID)
			return nil
		}
		return err
	}
	if m.IsDeleted || m.RoomID != roomID {
		s.log.Debugw("pin rejected", "id", messageID, "room", roomID)
		return nil
	}
	if err := s.rooms.SetPinned(ctx, roomID, messageID); err != nil {
		return err
	}
	s.fanout.ToRoom(roomID, ws.EvChatPinnedUpdated, ws.PinnedUpdatedPayload{RoomID: roomID, PinnedMessageID: messageID})
	return nil
}

func (s *ChatService) Unpin(ctx context.Context, roomID string) error {
	if err := s.rooms.ClearPinned(ctx, roomID); err != nil {
		return err
	}
	s.fanout.ToRoom(roomID, ws.EvChatPinnedUpdated, ws.PinnedUpdatedPayload{RoomID: roomID})
	return nil
}

// EnsureJoinable checks room access for userID and auto-enrolls them when
// the room is open. Private rooms reject non-members.
func (s *ChatService) EnsureJoinable(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(userID) {
		if room.IsPrivate {
			return nil, ErrPrivateRoom
		}
		if err := s.rooms.AddMember(ctx, roomID, userID); err != nil {
			return nil, err
		}
		room.Members = append(room.Members, userID)
	}
	return room, nil
}

// History returns a page of room messages, oldest first, each with its
// receipt aggregates attached from one batched query.
func (s *ChatService) History(ctx context.Context, roomID string, limit int64, before time.Time) ([]*models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.messages.ListByRoom(ctx, roomID, limit, before)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	summaries, err := s.receipts.SummarizeByMessageIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if sum, ok := summaries[m.ID]; ok {
			m.Receipts = sum
		}
	}
	return msgs, nil
}

func (s *ChatService) publish(ctx context.Context, eventType, roomID string, payload any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, eventType, roomID, payload); err != nil {
		s.log.Warnw("event publish", "type", eventType, "err", err)
	}
}
