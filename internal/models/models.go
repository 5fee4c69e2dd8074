package models

import "time"

type MessageKind string

const (
	KindText    MessageKind = "text"
	KindImage   MessageKind = "image"
	KindVideo   MessageKind = "video"
	KindAudio   MessageKind = "audio"
	KindSticker MessageKind = "sticker"
)

// User is the verified identity attached to a connection. Owned by the
// auth service; never mutated here.
type User struct {
	ID          string `bson:"_id" json:"id"`
	Username    string `bson:"username" json:"username"`
	DisplayName string `bson:"display_name" json:"display_name"`
}

type Message struct {
	ID       string      `bson:"_id" json:"id"`
	// TempID is the client-generated id carried while the message is in
	// flight. Echoed back on the confirmation broadcast, never persisted.
	TempID   string      `bson:"-" json:"temp_id,omitempty"`
	RoomID   string      `bson:"room_id" json:"room_id"`
	AuthorID string      `bson:"author_id" json:"author_id"`
	Kind     MessageKind `bson:"kind" json:"kind"`
	Content  string      `bson:"content" json:"content"`
	MediaURL string      `bson:"media_url,omitempty" json:"media_url,omitempty"`

	ReplyToID string `bson:"reply_to_id,omitempty" json:"reply_to_id,omitempty"`

	// Reactions maps emoji -> reactor user ids. Broadcast whole, not as
	// deltas; receivers replace their copy.
	Reactions map[string][]string `bson:"reactions,omitempty" json:"reactions,omitempty"`

	IsForwarded   bool   `bson:"is_forwarded" json:"is_forwarded"`
	ForwardedFrom string `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`

	// IsDeleted marks a soft delete: content and media are cleared but the
	// id stays resolvable so reply chains keep working.
	IsDeleted bool `bson:"is_deleted" json:"is_deleted"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Receipts is attached on history reads only.
	Receipts *ReceiptSummary `bson:"-" json:"receipts,omitempty"`
}

type Room struct {
	ID              string    `bson:"_id" json:"id"`
	Name            string    `bson:"name" json:"name"`
	IsPrivate       bool      `bson:"is_private" json:"is_private"`
	Members         []string  `bson:"members" json:"members"`
	PinnedMessageID string    `bson:"pinned_message_id,omitempty" json:"pinned_message_id,omitempty"`
	LastActivityAt  time.Time `bson:"last_activity_at" json:"last_activity_at"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Receipt is one row per (message, recipient). Never created for the
// message's own author. DeliveredAt is set on first observation and never
// overwritten; SeenAt is set once on explicit acknowledgment.
type Receipt struct {
	MessageID   string     `bson:"message_id" json:"message_id"`
	UserID      string     `bson:"user_id" json:"user_id"`
	UserName    string     `bson:"user_name" json:"user_name"`
	DeliveredAt time.Time  `bson:"delivered_at" json:"delivered_at"`
	SeenAt      *time.Time `bson:"seen_at,omitempty" json:"seen_at,omitempty"`
}

type ReceiptSummary struct {
	MessageID      string   `bson:"message_id" json:"message_id"`
	DeliveredCount int      `bson:"delivered_count" json:"delivered_count"`
	SeenCount      int      `bson:"seen_count" json:"seen_count"`
	SeenBy         []string `bson:"seen_by" json:"seen_by"`
}
