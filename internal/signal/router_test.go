package signal

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

type sentFrame struct {
	Scope   string
	Room    string
	User    string
	Except  string
	Event   string
	Payload any
}

type fakeFanout struct {
	mu      sync.Mutex
	online  map[string]bool
	frames  []sentFrame
}

func newFakeFanout(online ...string) *fakeFanout {
	f := &fakeFanout{online: map[string]bool{}}
	for _, u := range online {
		f.online[u] = true
	}
	return f
}

func (f *fakeFanout) ToRoomExcept(roomID, exceptUserID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{Scope: "room", Room: roomID, Except: exceptUserID, Event: event, Payload: payload})
}

func (f *fakeFanout) ToUser(userID, event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[userID] {
		return false
	}
	f.frames = append(f.frames, sentFrame{Scope: "user", User: userID, Event: event, Payload: payload})
	return true
}

func (f *fakeFanout) byEvent(event string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, fr := range f.frames {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

var alice = models.User{ID: "alice", Username: "alice", DisplayName: "Alice"}
var bob = models.User{ID: "bob", Username: "bob", DisplayName: "Bob"}

func TestHandleStartExcludesCaller(t *testing.T) {
	fan := newFakeFanout("alice", "bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleStart(alice, ws.CallStartPayload{RoomID: "r1", IsVideo: true})

	frames := fan.byEvent(ws.EvCallIncoming)
	require.Len(t, frames, 1)
	assert.Equal(t, "r1", frames[0].Room)
	assert.Equal(t, "alice", frames[0].Except)

	p := frames[0].Payload.(ws.CallIncomingPayload)
	assert.Equal(t, "alice", p.CallerID)
	assert.Equal(t, "Alice", p.CallerName)
	assert.True(t, p.IsVideo)
}

func TestHandleAcceptNotifiesCallerAndRoom(t *testing.T) {
	fan := newFakeFanout("alice", "bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleAccept(bob, ws.CallAcceptPayload{RoomID: "r1", CallerID: "alice", IsVideo: true})

	accepted := fan.byEvent(ws.EvCallAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "alice", accepted[0].User)
	assert.Equal(t, "bob", accepted[0].Payload.(ws.CallPeerPayload).UserID)

	joined := fan.byEvent(ws.EvCallParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "bob", joined[0].Except)
}

func TestHandleDecline(t *testing.T) {
	fan := newFakeFanout("alice")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleDecline(bob, ws.CallAcceptPayload{RoomID: "r1", CallerID: "alice"})

	frames := fan.byEvent(ws.EvCallDeclined)
	require.Len(t, frames, 1)
	assert.Equal(t, "alice", frames[0].User)
}

func TestHandleSignalStampsSenderAndTargets(t *testing.T) {
	fan := newFakeFanout("bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	r.HandleSignal(alice, ws.EvCallOffer, ws.CallSignalPayload{
		RoomID: "r1", TargetUserID: "bob", SDP: sdp,
	})

	frames := fan.byEvent(ws.EvCallOffer)
	require.Len(t, frames, 1)
	assert.Equal(t, "bob", frames[0].User)

	p := frames[0].Payload.(ws.CallSignalPayload)
	// the sender identity comes from the verified connection, never the payload
	assert.Equal(t, "alice", p.From)
	assert.JSONEq(t, string(sdp), string(p.SDP))
}

func TestHandleSignalDropsWithoutTarget(t *testing.T) {
	fan := newFakeFanout("alice", "bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleSignal(alice, ws.EvCallICE, ws.CallSignalPayload{RoomID: "r1"})
	assert.Empty(t, fan.frames)
}

func TestHandleSignalDropsForOfflineTarget(t *testing.T) {
	fan := newFakeFanout("alice")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleSignal(alice, ws.EvCallAnswer, ws.CallSignalPayload{RoomID: "r1", TargetUserID: "ghost"})
	assert.Empty(t, fan.frames)
}

func TestHandleEndTargeted(t *testing.T) {
	fan := newFakeFanout("bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleEnd(alice, ws.CallEndPayload{RoomID: "r1", TargetUserID: "bob"})

	frames := fan.byEvent(ws.EvCallEnded)
	require.Len(t, frames, 1)
	assert.Equal(t, "user", frames[0].Scope)
	assert.Equal(t, "bob", frames[0].User)
	assert.Equal(t, "alice", frames[0].Payload.(ws.CallEndPayload).UserID)
}

func TestHandleEndBroadcastsWithoutTarget(t *testing.T) {
	fan := newFakeFanout("alice", "bob")
	r := NewRouter(fan, zap.NewNop().Sugar())

	r.HandleEnd(alice, ws.CallEndPayload{RoomID: "r1"})

	frames := fan.byEvent(ws.EvCallEnded)
	require.Len(t, frames, 1)
	assert.Equal(t, "room", frames[0].Scope)
	assert.Equal(t, "alice", frames[0].Except)
}
