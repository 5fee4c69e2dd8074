package ws

import (
	"encoding/json"
	"time"
)

// Client -> server payloads.

type SendMessagePayload struct {
	TempID        string `json:"temp_id,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Content       string `json:"content,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
	IsForwarded   bool   `json:"is_forwarded,omitempty"`
	ForwardedFrom string `json:"forwarded_from,omitempty"`
}

type EditMessagePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type DeleteMessagePayload struct {
	ID string `json:"id"`
}

type ToggleReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type PinMessagePayload struct {
	MessageID string `json:"message_id"`
}

// Server -> client payloads.

type MessageUpdatedPayload struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageDeletedPayload struct {
	ID string `json:"id"`
}

type ReactionUpdatedPayload struct {
	MessageID string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

type PinnedUpdatedPayload struct {
	RoomID          string `json:"room_id"`
	PinnedMessageID string `json:"pinned_message_id,omitempty"`
}

type TypingPayload struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Call signaling payloads. SDP and candidates are opaque to the server.

type CallStartPayload struct {
	RoomID  string `json:"room_id"`
	IsVideo bool   `json:"is_video"`
}

type CallIncomingPayload struct {
	RoomID     string `json:"room_id"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name,omitempty"`
	IsVideo    bool   `json:"is_video"`
}

type CallAcceptPayload struct {
	RoomID   string `json:"room_id"`
	CallerID string `json:"caller_id"`
	IsVideo  bool   `json:"is_video"`
}

type CallPeerPayload struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	IsVideo     bool   `json:"is_video,omitempty"`
}

type CallSignalPayload struct {
	RoomID       string          `json:"room_id"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	From         string          `json:"from,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

type CallEndPayload struct {
	RoomID       string `json:"room_id"`
	TargetUserID string `json:"target_user_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}
