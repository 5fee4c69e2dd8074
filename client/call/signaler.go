package call

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/client/realtime"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

// RealtimeSignaler carries mesh signaling over the realtime event channel.
type RealtimeSignaler struct {
	rt *realtime.Client
}

func NewRealtimeSignaler(rt *realtime.Client) *RealtimeSignaler {
	return &RealtimeSignaler{rt: rt}
}

func (s *RealtimeSignaler) Start(roomID string, isVideo bool) error {
	return s.rt.StartCall(roomID, isVideo)
}

func (s *RealtimeSignaler) Accept(roomID, callerID string, isVideo bool) error {
	return s.rt.AcceptCall(roomID, callerID, isVideo)
}

func (s *RealtimeSignaler) Decline(roomID, callerID string) error {
	return s.rt.DeclineCall(roomID, callerID)
}

func (s *RealtimeSignaler) SendOffer(targetID, roomID string, sdp webrtc.SessionDescription) error {
	return s.sendSDP(ws.EvCallOffer, targetID, roomID, sdp)
}

func (s *RealtimeSignaler) SendAnswer(targetID, roomID string, sdp webrtc.SessionDescription) error {
	return s.sendSDP(ws.EvCallAnswer, targetID, roomID, sdp)
}

func (s *RealtimeSignaler) sendSDP(event, targetID, roomID string, sdp webrtc.SessionDescription) error {
	b, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return s.rt.SendCallSignal(event, ws.CallSignalPayload{
		RoomID:       roomID,
		TargetUserID: targetID,
		SDP:          b,
	})
}

func (s *RealtimeSignaler) SendCandidate(targetID, roomID string, cand webrtc.ICECandidateInit) error {
	b, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	return s.rt.SendCallSignal(ws.EvCallICE, ws.CallSignalPayload{
		RoomID:       roomID,
		TargetUserID: targetID,
		Candidate:    b,
	})
}

func (s *RealtimeSignaler) End(roomID, targetID string) error {
	return s.rt.EndCall(roomID, targetID)
}

// Bind registers the mesh's inbound call-event handlers on the realtime
// channel.
func Bind(rt *realtime.Client, m *Mesh, log *zap.SugaredLogger) {
	rt.On(ws.EvCallIncoming, func(env *ws.Envelope) {
		var p ws.CallIncomingPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if err := m.HandleIncoming(p.RoomID, p.CallerID, p.IsVideo); err != nil {
			log.Warnw("handle incoming call", "err", err)
		}
	})
	rt.On(ws.EvCallAccepted, func(env *ws.Envelope) {
		var p ws.CallPeerPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if err := m.HandleAccepted(p.UserID); err != nil {
			log.Warnw("handle accepted", "peer", p.UserID, "err", err)
		}
	})
	rt.On(ws.EvCallParticipantJoined, func(env *ws.Envelope) {
		var p ws.CallPeerPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if err := m.HandleParticipantJoined(p.UserID); err != nil {
			log.Warnw("handle participant joined", "peer", p.UserID, "err", err)
		}
	})
	rt.On(ws.EvCallDeclined, func(env *ws.Envelope) {
		var p ws.CallPeerPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		log.Infow("call declined", "peer", p.UserID, "room", p.RoomID)
	})
	rt.On(ws.EvCallOffer, func(env *ws.Envelope) {
		p, sdp, ok := decodeSDP(env)
		if !ok {
			return
		}
		if err := m.HandleOffer(p.From, sdp); err != nil {
			log.Warnw("handle offer", "peer", p.From, "err", err)
		}
	})
	rt.On(ws.EvCallAnswer, func(env *ws.Envelope) {
		p, sdp, ok := decodeSDP(env)
		if !ok {
			return
		}
		if err := m.HandleAnswer(p.From, sdp); err != nil {
			log.Warnw("handle answer", "peer", p.From, "err", err)
		}
	})
	rt.On(ws.EvCallICE, func(env *ws.Envelope) {
		var p ws.CallSignalPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(p.Candidate, &cand) != nil {
			return
		}
		if err := m.HandleCandidate(p.From, cand); err != nil {
			log.Warnw("handle candidate", "peer", p.From, "err", err)
		}
	})
	rt.On(ws.EvCallEnded, func(env *ws.Envelope) {
		var p ws.CallEndPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		m.HandlePeerEnded(p.UserID)
	})
}

func decodeSDP(env *ws.Envelope) (ws.CallSignalPayload, webrtc.SessionDescription, bool) {
	var p ws.CallSignalPayload
	if json.Unmarshal(env.Payload, &p) != nil {
		return p, webrtc.SessionDescription{}, false
	}
	var sdp webrtc.SessionDescription
	if json.Unmarshal(p.SDP, &sdp) != nil {
		return p, sdp, false
	}
	return p, sdp, true
}
