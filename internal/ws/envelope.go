package ws

import "encoding/json"

// Envelope is the wire format for every event on the realtime channel, both
// directions.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(event, roomID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: event, RoomID: roomID}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = b
	}
	return env, nil
}

// Client -> server event types.
const (
	EvJoinRoom       = "joinRoom"
	EvMarkSeen       = "markSeen"
	EvSendMessage    = "sendMessage"
	EvEditMessage    = "editMessage"
	EvDeleteMessage  = "deleteMessage"
	EvToggleReaction = "toggleReaction"
	EvPinMessage     = "pinMessage"
	EvUnpinMessage   = "unpinMessage"
	EvTypingStart    = "typingStart"
	EvTypingStop     = "typingStop"
	EvCallStart      = "call:start"
	EvCallAccept     = "call:accept"
	EvCallDecline    = "call:decline"
	EvCallOffer      = "call:offer"
	EvCallAnswer     = "call:answer"
	EvCallICE        = "call:ice"
	EvCallEnd        = "call:end"
)

// Server -> client event types.
const (
	EvError                 = "error"
	EvMessage               = "message"
	EvMessageUpdated        = "messageUpdated"
	EvMessageDeleted        = "messageDeleted"
	EvReactionUpdated       = "reactionUpdated"
	EvMessageReceiptUpdated = "messageReceiptUpdated"
	EvChatPinnedUpdated     = "chatPinnedUpdated"
	EvTypingStarted         = "typingStarted"
	EvTypingStopped         = "typingStopped"
	EvCallIncoming          = "call:incoming"
	EvCallAccepted          = "call:accepted"
	EvCallParticipantJoined = "call:participant-joined"
	EvCallDeclined          = "call:declined"
	EvCallEnded             = "call:ended"
)
