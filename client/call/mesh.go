package call

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// State is the client-observed call lifecycle.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateIncoming
	StateConnecting
	StateInCall
)

var ErrBusy = errors.New("call already active")

// Signaler carries the mesh's outbound signaling; the realtime channel
// implements it.
type Signaler interface {
	Start(roomID string, isVideo bool) error
	Accept(roomID, callerID string, isVideo bool) error
	Decline(roomID, callerID string) error
	SendOffer(targetID, roomID string, sdp webrtc.SessionDescription) error
	SendAnswer(targetID, roomID string, sdp webrtc.SessionDescription) error
	SendCandidate(targetID, roomID string, cand webrtc.ICECandidateInit) error
	End(roomID, targetID string) error
}

// Mesh owns one peer connection per remote participant of the active call.
// There is no central negotiation point: every pairwise link negotiates
// independently, and a call is just the set of its surviving links.
type Mesh struct {
	selfID   string
	cfg      webrtc.Configuration
	signaler Signaler
	newMedia MediaFactory
	log      *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	roomID   string
	isVideo  bool
	media    MediaSource
	sessions map[string]*Session
	// early holds candidates from peers whose offer has not arrived yet.
	// ICE gathering starts at SetLocalDescription, so a fast peer's
	// candidates can overtake its offer on the wire.
	early map[string][]webrtc.ICECandidateInit

	pendingRoom   string
	pendingCaller string

	// OnIncoming surfaces an incoming-call prompt. Not invoked for rooms
	// whose call this mesh already participates in.
	OnIncoming func(roomID, callerID string, isVideo bool)
	// OnPeerFailed reports a single failed link (soft banner, call goes on).
	OnPeerFailed func(peerID string)
	OnEnded      func()
}

func NewMesh(selfID string, cfg webrtc.Configuration, signaler Signaler, newMedia MediaFactory, log *zap.SugaredLogger) *Mesh {
	return &Mesh{
		selfID:   selfID,
		cfg:      cfg,
		signaler: signaler,
		newMedia: newMedia,
		log:      log,
		sessions: make(map[string]*Session),
		early:    make(map[string][]webrtc.ICECandidateInit),
	}
}

func (m *Mesh) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mesh) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

func (m *Mesh) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// Start begins a call in roomID. Media is acquired once; its tracks are
// attached to every session created during the call.
func (m *Mesh) Start(roomID string, isVideo bool) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrBusy
	}
	media, err := m.newMedia(isVideo)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = StateCalling
	m.roomID = roomID
	m.isVideo = isVideo
	m.media = media
	m.mu.Unlock()

	return m.signaler.Start(roomID, isVideo)
}

// HandleIncoming processes call:incoming. When this mesh is already in the
// same room's call (a second caller pinged an active call), it
// short-circuits to accept-and-mesh instead of prompting again.
func (m *Mesh) HandleIncoming(roomID, callerID string, isVideo bool) error {
	m.mu.Lock()
	if m.state != StateIdle && m.roomID == roomID {
		m.mu.Unlock()
		return m.signaler.Accept(roomID, callerID, isVideo)
	}
	if m.state != StateIdle {
		// busy elsewhere; leave the decline decision to the user
		m.mu.Unlock()
		return nil
	}
	m.state = StateIncoming
	m.pendingRoom = roomID
	m.pendingCaller = callerID
	m.isVideo = isVideo
	m.mu.Unlock()

	if m.OnIncoming != nil {
		m.OnIncoming(roomID, callerID, isVideo)
	}
	return nil
}

// Accept joins the pending incoming call. Offers then fan in from every
// existing participant; this side never initiates toward them.
func (m *Mesh) Accept() error {
	m.mu.Lock()
	if m.state != StateIncoming {
		m.mu.Unlock()
		return errors.New("no incoming call")
	}
	media, err := m.newMedia(m.isVideo)
	if err != nil {
		m.state = StateIdle
		m.mu.Unlock()
		return err
	}
	m.media = media
	m.state = StateConnecting
	m.roomID = m.pendingRoom
	caller := m.pendingCaller
	room := m.pendingRoom
	isVideo := m.isVideo
	m.mu.Unlock()

	return m.signaler.Accept(room, caller, isVideo)
}

func (m *Mesh) Decline() error {
	m.mu.Lock()
	if m.state != StateIncoming {
		m.mu.Unlock()
		return nil
	}
	room, caller := m.pendingRoom, m.pendingCaller
	m.state = StateIdle
	m.pendingRoom = ""
	m.pendingCaller = ""
	m.mu.Unlock()

	return m.signaler.Decline(room, caller)
}

// HandleAccepted runs on the caller when a callee accepts: open a link to
// them and push the offer.
func (m *Mesh) HandleAccepted(userID string) error {
	return m.offerTo(userID)
}

// HandleParticipantJoined runs on every existing participant when someone
// new accepts: each independently pushes a fresh offer to the newcomer.
// This symmetric fan-out is what converges the mesh for N-way calls.
func (m *Mesh) HandleParticipantJoined(userID string) error {
	if userID == m.selfID {
		return nil
	}
	return m.offerTo(userID)
}

func (m *Mesh) offerTo(peerID string) error {
	s, created, err := m.ensureSession(peerID)
	if err != nil {
		return err
	}
	if !created {
		// duplicate join notification; the link already exists
		return nil
	}
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	m.mu.Lock()
	room := m.roomID
	m.mu.Unlock()
	return m.signaler.SendOffer(peerID, room, offer)
}

// HandleOffer answers a fan-in offer from an existing participant.
func (m *Mesh) HandleOffer(fromID string, sdp webrtc.SessionDescription) error {
	s, _, err := m.ensureSession(fromID)
	if err != nil {
		return err
	}
	if err := s.SetRemoteDescription(sdp); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateCalling {
		m.state = StateInCall
	}
	room := m.roomID
	m.mu.Unlock()
	return m.signaler.SendAnswer(fromID, room, answer)
}

func (m *Mesh) HandleAnswer(fromID string, sdp webrtc.SessionDescription) error {
	m.mu.Lock()
	s, ok := m.sessions[fromID]
	if ok && (m.state == StateCalling || m.state == StateConnecting) {
		m.state = StateInCall
	}
	m.mu.Unlock()
	if !ok {
		m.log.Debugw("answer for unknown peer, dropped", "peer", fromID)
		return nil
	}
	return s.SetRemoteDescription(sdp)
}

func (m *Mesh) HandleCandidate(fromID string, cand webrtc.ICECandidateInit) error {
	m.mu.Lock()
	s, ok := m.sessions[fromID]
	if !ok {
		if m.state == StateIdle {
			m.mu.Unlock()
			m.log.Debugw("candidate outside any call, dropped", "peer", fromID)
			return nil
		}
		// the peer's offer is still in flight; hold the candidate until the
		// session exists
		m.early[fromID] = append(m.early[fromID], cand)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return s.AddCandidate(cand)
}

// HandlePeerEnded tears down one link. The call survives unless this was
// the last peer.
func (m *Mesh) HandlePeerEnded(fromID string) {
	m.teardownPeer(fromID, false)
}

// ToggleCamera flips track enabled state only; no renegotiation, no device
// re-acquisition.
func (m *Mesh) ToggleCamera(enabled bool) {
	m.mu.Lock()
	media := m.media
	m.mu.Unlock()
	if media != nil {
		media.SetCameraEnabled(enabled)
	}
}

// End terminates the call for this client: signal the room, then release
// every session, the media source and all candidate queues unconditionally.
func (m *Mesh) End() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	room := m.roomID
	m.mu.Unlock()

	err := m.signaler.End(room, "")
	m.cleanup()
	return err
}

// ensureSession creates the link to peerID at most once. The created flag
// tells callers whether negotiation should start; handler reentrancy on the
// shared map is resolved here.
func (m *Mesh) ensureSession(peerID string) (*Session, bool, error) {
	m.mu.Lock()
	if s, ok := m.sessions[peerID]; ok {
		m.mu.Unlock()
		return s, false, nil
	}
	media := m.media
	m.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(m.cfg)
	if err != nil {
		return nil, false, err
	}
	if media != nil {
		if _, err := pc.AddTrack(media.AudioTrack()); err != nil {
			_ = pc.Close()
			return nil, false, err
		}
		if vt := media.VideoTrack(); vt != nil {
			if _, err := pc.AddTrack(vt); err != nil {
				_ = pc.Close()
				return nil, false, err
			}
		}
	}

	s := newSession(peerID, pc)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		m.mu.Lock()
		room := m.roomID
		m.mu.Unlock()
		if err := m.signaler.SendCandidate(peerID, room, c.ToJSON()); err != nil {
			m.log.Warnw("send candidate", "peer", peerID, "err", err)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			m.teardownPeer(peerID, true)
		}
	})

	m.mu.Lock()
	if existing, ok := m.sessions[peerID]; ok {
		// lost the race to a concurrent handler; keep the first link
		m.mu.Unlock()
		_ = pc.Close()
		return existing, false, nil
	}
	m.sessions[peerID] = s
	held := m.early[peerID]
	delete(m.early, peerID)
	m.mu.Unlock()

	// candidates that beat the offer move onto the session's own queue and
	// flush with its remote description
	for _, c := range held {
		if err := s.AddCandidate(c); err != nil {
			m.log.Warnw("held candidate", "peer", peerID, "err", err)
		}
	}
	return s, true, nil
}

// teardownPeer releases one peer's resources only. The whole call ends only
// when no peers remain.
func (m *Mesh) teardownPeer(peerID string, failed bool) {
	m.mu.Lock()
	s, ok := m.sessions[peerID]
	if ok {
		delete(m.sessions, peerID)
	}
	delete(m.early, peerID)
	last := len(m.sessions) == 0 && m.state != StateIdle
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = s.Close()
	if failed && m.OnPeerFailed != nil {
		m.OnPeerFailed(peerID)
	}
	if last {
		m.cleanup()
	}
}

// cleanup is unconditional: every session, queue and the media source go,
// regardless of negotiation state.
func (m *Mesh) cleanup() {
	m.mu.Lock()
	sessions := m.sessions
	media := m.media
	m.sessions = make(map[string]*Session)
	m.early = make(map[string][]webrtc.ICECandidateInit)
	m.media = nil
	m.state = StateIdle
	m.roomID = ""
	m.pendingRoom = ""
	m.pendingCaller = ""
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	if media != nil {
		_ = media.Close()
	}
	if m.OnEnded != nil {
		m.OnEnded()
	}
}
