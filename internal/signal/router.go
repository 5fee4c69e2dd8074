package signal

import (
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// Fanout is the hub addressing the router needs.
type Fanout interface {
	ToRoomExcept(roomID, exceptUserID, event string, payload any)
	ToUser(userID, event string, payload any) bool
}

// Router relays call lifecycle and negotiation events between users. It
// holds no call state and never inspects SDP or candidate payloads; media is
// peer-to-peer.
type Router struct {
	fanout Fanout
	log    *zap.SugaredLogger
}

func NewRouter(fanout Fanout, log *zap.SugaredLogger) *Router {
	return &Router{fanout: fanout, log: log}
}

// HandleStart announces an incoming call to every other room subscriber.
// The router does not pick who answers; any participant may accept.
func (r *Router) HandleStart(from models.User, p ws.CallStartPayload) {
	r.fanout.ToRoomExcept(p.RoomID, from.ID, ws.EvCallIncoming, ws.CallIncomingPayload{
		RoomID:     p.RoomID,
		CallerID:   from.ID,
		CallerName: from.DisplayName,
		IsVideo:    p.IsVideo,
	})
}

// HandleAccept has the dual effect that makes N-way calls work: the caller
// gets a unicast accept, and everyone else sees participant-joined so each
// existing participant pushes a fresh offer to the newcomer.
func (r *Router) HandleAccept(from models.User, p ws.CallAcceptPayload) {
	peer := ws.CallPeerPayload{
		RoomID:      p.RoomID,
		UserID:      from.ID,
		DisplayName: from.DisplayName,
		IsVideo:     p.IsVideo,
	}
	if !r.fanout.ToUser(p.CallerID, ws.EvCallAccepted, peer) {
		r.log.Infow("accept dropped, caller unreachable", "caller", p.CallerID, "room", p.RoomID)
	}
	r.fanout.ToRoomExcept(p.RoomID, from.ID, ws.EvCallParticipantJoined, peer)
}

func (r *Router) HandleDecline(from models.User, p ws.CallAcceptPayload) {
	if !r.fanout.ToUser(p.CallerID, ws.EvCallDeclined, ws.CallPeerPayload{
		RoomID:      p.RoomID,
		UserID:      from.ID,
		DisplayName: from.DisplayName,
	}) {
		r.log.Infow("decline dropped, caller unreachable", "caller", p.CallerID, "room", p.RoomID)
	}
}

// HandleSignal relays offer/answer/ice to their explicit target. Pure
// pass-through; payloads are opaque here.
func (r *Router) HandleSignal(from models.User, event string, p ws.CallSignalPayload) {
	if p.TargetUserID == "" {
		r.log.Debugw("signal without target, dropped", "event", event, "from", from.ID)
		return
	}
	p.From = from.ID
	if !r.fanout.ToUser(p.TargetUserID, event, p) {
		// Target offline: drop. The sender sees no answer and times out
		// locally.
		r.log.Infow("signal dropped, target unreachable", "event", event, "target", p.TargetUserID)
	}
}

// HandleEnd tears down one mesh link when a target is given, otherwise
// signals full call termination to the room. Receivers decide locally
// whether their own peer count reaches zero.
func (r *Router) HandleEnd(from models.User, p ws.CallEndPayload) {
	ended := ws.CallEndPayload{RoomID: p.RoomID, UserID: from.ID}
	if p.TargetUserID != "" {
		if !r.fanout.ToUser(p.TargetUserID, ws.EvCallEnded, ended) {
			r.log.Infow("end dropped, target unreachable", "target", p.TargetUserID)
		}
		return
	}
	r.fanout.ToRoomExcept(p.RoomID, from.ID, ws.EvCallEnded, ended)
}
