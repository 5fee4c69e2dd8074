package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// ReceiptService maintains per-message, per-recipient delivery/seen state
// and broadcasts aggregates after each upsert batch.
type ReceiptService struct {
	messages repository.MessageRepository
	receipts repository.ReceiptRepository
	fanout   Fanout
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewReceiptService(
	messages repository.MessageRepository,
	receipts repository.ReceiptRepository,
	fanout Fanout,
	log *zap.SugaredLogger,
) *ReceiptService {
	return &ReceiptService{
		messages: messages,
		receipts: receipts,
		fanout:   fanout,
		log:      log,
		now:      time.Now,
	}
}

// MarkDelivered records delivery of every foreign message in the room to
// user. Runs on room join; idempotent, so a reconnect rejoin is harmless.
func (s *ReceiptService) MarkDelivered(ctx context.Context, roomID string, user models.User) error {
	return s.mark(ctx, roomID, user, false)
}

// MarkSeen additionally acknowledges the messages as seen. Runs only on an
// explicit client request, never as a reconnect side effect.
func (s *ReceiptService) MarkSeen(ctx context.Context, roomID string, user models.User) error {
	return s.mark(ctx, roomID, user, true)
}

func (s *ReceiptService) mark(ctx context.Context, roomID string, user models.User, seen bool) error {
	// Receipts exist only for messages the user did not author.
	ids, err := s.messages.ListForeignIDs(ctx, roomID, user.ID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	at := s.now().UTC()
	if seen {
		err = s.receipts.UpsertSeen(ctx, ids, user.ID, user.DisplayName, at)
	} else {
		err = s.receipts.UpsertDelivered(ctx, ids, user.ID, user.DisplayName, at)
	}
	if err != nil {
		return err
	}
	s.broadcastSummaries(ctx, roomID, ids)
	return nil
}

// broadcastSummaries emits one messageReceiptUpdated per affected message
// id, not one per receipt row.
func (s *ReceiptService) broadcastSummaries(ctx context.Context, roomID string, ids []string) {
	summaries, err := s.receipts.SummarizeByMessageIDs(ctx, ids)
	if err != nil {
		s.log.Warnw("receipt summaries", "room", roomID, "err", err)
		return
	}
	for _, id := range ids {
		sum, ok := summaries[id]
		if !ok {
			continue
		}
		s.fanout.ToRoom(roomID, ws.EvMessageReceiptUpdated, sum)
	}
}
