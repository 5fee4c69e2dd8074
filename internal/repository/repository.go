package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	ListByRoom(ctx context.Context, roomID string, limit int64, before time.Time) ([]*models.Message, error)
	// ListForeignIDs returns ids of non-deleted messages in the room not
	// authored by userID, i.e. the set that can carry a receipt for them.
	ListForeignIDs(ctx context.Context, roomID, userID string) ([]string, error)
	// UpdateContent writes only to live messages; an id that is unknown or
	// already soft-deleted reports ErrNotFound. The guard lives in the
	// filter so an edit racing a delete can never resurrect content.
	UpdateContent(ctx context.Context, id, text string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
	// ToggleReaction adds userID under emoji, or removes them if present,
	// using per-key operators so concurrent toggles by different users
	// never overwrite each other. Returns the updated message.
	ToggleReaction(ctx context.Context, id, emoji, userID string) (*models.Message, error)
}

type RoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	AddMember(ctx context.Context, roomID, userID string) error
	TouchActivity(ctx context.Context, roomID string, at time.Time) error
	SetPinned(ctx context.Context, roomID, messageID string) error
	ClearPinned(ctx context.Context, roomID string) error
	// ClearPinnedIf unsets the pin only when it currently points at
	// messageID. Reports whether a pin was cleared.
	ClearPinnedIf(ctx context.Context, roomID, messageID string) (bool, error)
}

type ReceiptRepository interface {
	// UpsertDelivered sets delivered_at on first observation for each
	// (messageID, userID) pair; existing rows are untouched.
	UpsertDelivered(ctx context.Context, messageIDs []string, userID, userName string, at time.Time) error
	// UpsertSeen additionally sets seen_at, once. A seen_at already present
	// is never overwritten or moved.
	UpsertSeen(ctx context.Context, messageIDs []string, userID, userName string, at time.Time) error
	SummarizeByMessageIDs(ctx context.Context, messageIDs []string) (map[string]*models.ReceiptSummary, error)
}
