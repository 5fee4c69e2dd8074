package call

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Session is one direct peer link inside a mesh call: the peer connection
// plus the ICE candidates that arrived before the remote description was
// set. Each session has a fully independent lifecycle.
type Session struct {
	peerID string
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

func newSession(peerID string, pc *webrtc.PeerConnection) *Session {
	return &Session{peerID: peerID, pc: pc}
}

func (s *Session) PeerID() string { return s.peerID }

// AddCandidate applies the candidate, or queues it when the remote
// description is not set yet. Early candidates must not be dropped;
// losing them breaks connectivity on slow networks.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.pc.AddICECandidate(c)
}

// SetRemoteDescription applies the description and flushes the queued
// candidates immediately after.
func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.remoteSet = true
	s.mu.Unlock()

	for _, c := range queued {
		if err := s.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) QueuedCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return s.pc.Close()
}
