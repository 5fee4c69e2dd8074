package call

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaSource supplies the local tracks attached to every peer connection of
// a call. Acquired once per call and shared by all sessions.
type MediaSource interface {
	AudioTrack() webrtc.TrackLocal
	// VideoTrack is nil for audio-only calls.
	VideoTrack() webrtc.TrackLocal
	// SetCameraEnabled flips the camera without renegotiating or
	// re-acquiring the device.
	SetCameraEnabled(enabled bool)
	CameraEnabled() bool
	Close() error
}

// MediaFactory acquires a source at call setup.
type MediaFactory func(video bool) (MediaSource, error)

// SampleSource is a MediaSource fed by the application's capture loop via
// WriteAudio/WriteVideo. Video samples are swallowed while the camera is
// off, which keeps the track (and its transceiver) alive.
type SampleSource struct {
	audio  *webrtc.TrackLocalStaticSample
	video  *webrtc.TrackLocalStaticSample
	camera atomic.Bool
}

func NewSampleSource(video bool) (*SampleSource, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "call")
	if err != nil {
		return nil, err
	}
	s := &SampleSource{audio: audio}
	if video {
		vt, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "call")
		if err != nil {
			return nil, err
		}
		s.video = vt
		s.camera.Store(true)
	}
	return s, nil
}

func (s *SampleSource) AudioTrack() webrtc.TrackLocal { return s.audio }

func (s *SampleSource) VideoTrack() webrtc.TrackLocal {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *SampleSource) SetCameraEnabled(enabled bool) { s.camera.Store(enabled) }
func (s *SampleSource) CameraEnabled() bool           { return s.camera.Load() }

func (s *SampleSource) WriteAudio(sample media.Sample) error {
	return s.audio.WriteSample(sample)
}

func (s *SampleSource) WriteVideo(sample media.Sample) error {
	if s.video == nil || !s.camera.Load() {
		return nil
	}
	return s.video.WriteSample(sample)
}

func (s *SampleSource) Close() error { return nil }
