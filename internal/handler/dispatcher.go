package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/signal"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Dispatcher routes inbound envelopes from a connection to the right
// service. One instance serves all connections.
type Dispatcher struct {
	hub      *ws.Hub
	chats    *service.ChatService
	receipts *service.ReceiptService
	signals  *signal.Router
	presence *presence.Store
	log      *zap.SugaredLogger
}

func NewDispatcher(
	hub *ws.Hub,
	chats *service.ChatService,
	receipts *service.ReceiptService,
	signals *signal.Router,
	pres *presence.Store,
	log *zap.SugaredLogger,
) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		chats:    chats,
		receipts: receipts,
		signals:  signals,
		presence: pres,
		log:      log,
	}
}

func (d *Dispatcher) Handle(c *ws.Client, env *ws.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.presence != nil {
		_ = d.presence.Refresh(ctx, c.User.ID)
	}

	switch env.Type {
	case ws.EvJoinRoom:
		d.handleJoin(ctx, c, env.RoomID)
	case ws.EvMarkSeen:
		if err := d.receipts.MarkSeen(ctx, env.RoomID, c.User); err != nil {
			d.log.Errorw("mark seen", "room", env.RoomID, "user", c.User.ID, "err", err)
		}
	case ws.EvSendMessage:
		d.handleSend(ctx, c, env)
	case ws.EvEditMessage:
		var p ws.EditMessagePayload
		if !d.decode(env, &p) {
			return
		}
		if err := d.chats.Edit(ctx, p.ID, p.Content); err != nil {
			d.log.Errorw("edit message", "id", p.ID, "err", err)
		}
	case ws.EvDeleteMessage:
		var p ws.DeleteMessagePayload
		if !d.decode(env, &p) {
			return
		}
		if err := d.chats.Delete(ctx, p.ID); err != nil {
			d.log.Errorw("delete message", "id", p.ID, "err", err)
		}
	case ws.EvToggleReaction:
		var p ws.ToggleReactionPayload
		if !d.decode(env, &p) {
			return
		}
		if err := d.chats.ToggleReaction(ctx, p.MessageID, p.Emoji, c.User.ID); err != nil {
			d.log.Errorw("toggle reaction", "id", p.MessageID, "err", err)
		}
	case ws.EvPinMessage:
		var p ws.PinMessagePayload
		if !d.decode(env, &p) {
			return
		}
		if err := d.chats.Pin(ctx, env.RoomID, p.MessageID); err != nil {
			d.log.Errorw("pin message", "id", p.MessageID, "err", err)
		}
	case ws.EvUnpinMessage:
		if err := d.chats.Unpin(ctx, env.RoomID); err != nil {
			d.log.Errorw("unpin", "room", env.RoomID, "err", err)
		}
	case ws.EvTypingStart:
		d.relayTyping(c, env.RoomID, ws.EvTypingStarted)
	case ws.EvTypingStop:
		d.relayTyping(c, env.RoomID, ws.EvTypingStopped)
	case ws.EvCallStart:
		var p ws.CallStartPayload
		if !d.decode(env, &p) {
			return
		}
		d.signals.HandleStart(c.User, p)
	case ws.EvCallAccept:
		var p ws.CallAcceptPayload
		if !d.decode(env, &p) {
			return
		}
		d.signals.HandleAccept(c.User, p)
	case ws.EvCallDecline:
		var p ws.CallAcceptPayload
		if !d.decode(env, &p) {
			return
		}
		d.signals.HandleDecline(c.User, p)
	case ws.EvCallOffer, ws.EvCallAnswer, ws.EvCallICE:
		var p ws.CallSignalPayload
		if !d.decode(env, &p) {
			return
		}
		d.signals.HandleSignal(c.User, env.Type, p)
	case ws.EvCallEnd:
		var p ws.CallEndPayload
		if !d.decode(env, &p) {
			return
		}
		d.signals.HandleEnd(c.User, p)
	default:
		d.log.Debugw("unknown event type", "type", env.Type, "user", c.User.ID)
	}
}

// handleJoin subscribes the connection to the room (its single content
// room), auto-enrolling open-room visitors, then records delivery receipts.
// Seen-marking is not a join side effect; it takes an explicit markSeen.
func (d *Dispatcher) handleJoin(ctx context.Context, c *ws.Client, roomID string) {
	if roomID == "" {
		return
	}
	if _, err := d.chats.EnsureJoinable(ctx, roomID, c.User.ID); err != nil {
		switch {
		case errors.Is(err, service.ErrPrivateRoom):
			d.log.Infow("join rejected, private room", "room", roomID, "user", c.User.ID)
		case errors.Is(err, repository.ErrNotFound):
			d.log.Infow("join for unknown room, dropped", "room", roomID, "user", c.User.ID)
		default:
			d.log.Errorw("join room", "room", roomID, "err", err)
		}
		return
	}
	d.hub.JoinRoom(c, roomID)
	if err := d.receipts.MarkDelivered(ctx, roomID, c.User); err != nil {
		d.log.Errorw("mark delivered", "room", roomID, "user", c.User.ID, "err", err)
	}
}

func (d *Dispatcher) handleSend(ctx context.Context, c *ws.Client, env *ws.Envelope) {
	var p ws.SendMessagePayload
	if !d.decode(env, &p) {
		return
	}
	_, err := d.chats.Send(ctx, service.SendInput{
		RoomID:        env.RoomID,
		AuthorID:      c.User.ID,
		TempID:        p.TempID,
		Kind:          models.MessageKind(p.Kind),
		Content:       p.Content,
		MediaURL:      p.MediaURL,
		ReplyToID:     p.ReplyToID,
		IsForwarded:   p.IsForwarded,
		ForwardedFrom: p.ForwardedFrom,
	})
	if errors.Is(err, service.ErrEmptyMessage) {
		// surfaced to the sender only
		c.SendEnvelope(mustEnvelope(ws.EvError, env.RoomID, map[string]string{
			"kind":    "EmptyMessage",
			"temp_id": p.TempID,
		}))
		return
	}
	if err != nil {
		d.log.Errorw("send message", "room", env.RoomID, "err", err)
	}
}

func (d *Dispatcher) relayTyping(c *ws.Client, roomID, event string) {
	if roomID == "" {
		return
	}
	d.hub.ToRoomExcept(roomID, c.User.ID, event, ws.TypingPayload{
		RoomID:      roomID,
		UserID:      c.User.ID,
		DisplayName: c.User.DisplayName,
	})
}

func (d *Dispatcher) decode(env *ws.Envelope, out any) bool {
	if err := json.Unmarshal(env.Payload, out); err != nil {
		d.log.Debugw("bad payload, dropped", "type", env.Type, "err", err)
		return false
	}
	return true
}

func mustEnvelope(event, roomID string, payload any) *ws.Envelope {
	env, _ := ws.NewEnvelope(event, roomID, payload)
	return env
}
