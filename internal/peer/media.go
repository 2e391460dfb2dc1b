package peer

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	audioClockRate     = 48000
	videoFrameDuration = 33 * time.Millisecond
	videoClockRate     = 90000
	audioPayloadType   = 111
	videoPayloadType   = 96
)

// Media owns the local audio and video tracks of a headless participant.
// Both sources are synthetic RTP streams; toggling disables emission
// without renegotiating, the way a browser mutes a track in place.
type Media struct {
	AudioTrack *webrtc.TrackLocalStaticRTP
	VideoTrack *webrtc.TrackLocalStaticRTP

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool

	logger *zap.SugaredLogger

	wg sync.WaitGroup
}

// NewMedia builds the track pair. Streams do not start until Attach.
func NewMedia(logger *zap.SugaredLogger) (*Media, error) {
	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"pairview-audio",
	)
	if err != nil {
		return nil, err
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"pairview-video",
	)
	if err != nil {
		return nil, err
	}

	m := &Media{
		AudioTrack: audioTrack,
		VideoTrack: videoTrack,
		logger:     logger,
	}
	m.audioEnabled.Store(true)
	m.videoEnabled.Store(true)
	return m, nil
}

// Attach adds both tracks to the peer connection and starts the paced
// writers plus the RTCP drain loops. Runs until ctx is cancelled.
func (m *Media) Attach(ctx context.Context, pc *webrtc.PeerConnection) error {
	audioSender, err := pc.AddTrack(m.AudioTrack)
	if err != nil {
		return err
	}
	videoSender, err := pc.AddTrack(m.VideoTrack)
	if err != nil {
		return err
	}

	m.wg.Add(4)
	go m.writeLoop(ctx, m.AudioTrack, &m.audioEnabled, audioFrameDuration, audioClockRate, audioPayloadType, 160)
	go m.writeLoop(ctx, m.VideoTrack, &m.videoEnabled, videoFrameDuration, videoClockRate, videoPayloadType, 1200)
	go m.drainRTCP(ctx, audioSender, "audio")
	go m.drainRTCP(ctx, videoSender, "video")
	return nil
}

// writeLoop emits silence-sized frames at the codec's pacing. Disabled
// tracks keep the loop alive but write nothing, so a toggle back on
// resumes with a coherent timestamp.
func (m *Media) writeLoop(ctx context.Context, track *webrtc.TrackLocalStaticRTP, enabled *atomic.Bool, frame time.Duration, clockRate, payloadType int, payloadSize int) {
	defer m.wg.Done()

	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	ssrc := rand.Uint32()
	seq := uint16(rand.Intn(1 << 16))
	var timestamp uint32
	samplesPerFrame := uint32(uint64(clockRate) * uint64(frame) / uint64(time.Second))
	payload := make([]byte, payloadSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			timestamp += samplesPerFrame
			if !enabled.Load() {
				continue
			}
			seq++
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    uint8(payloadType),
					SequenceNumber: seq,
					Timestamp:      timestamp,
					SSRC:           ssrc,
				},
				Payload: payload,
			}
			if err := track.WriteRTP(pkt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					// Not bound to a transport yet, or already torn down.
					continue
				}
				m.logger.Debugw("rtp write failed", "track", track.ID(), "error", err)
			}
		}
	}
}

// drainRTCP reads feedback off the sender so interceptors keep running.
// Receiver reports and PLIs are surfaced at debug level only.
func (m *Media) drainRTCP(ctx context.Context, sender *webrtc.RTPSender, kind string) {
	defer m.wg.Done()

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return
		}
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			m.logger.Debugw("rtcp unmarshal failed", "kind", kind, "error", err)
			continue
		}
		for _, pkt := range packets {
			switch p := pkt.(type) {
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					m.logger.Debugw("receiver report",
						"kind", kind,
						"fraction_lost", report.FractionLost,
						"jitter", report.Jitter,
					)
				}
			case *rtcp.PictureLossIndication:
				m.logger.Debugw("picture loss indication", "kind", kind)
			}
		}
	}
}

// ToggleAudio flips the audio source and reports the new enabled state.
func (m *Media) ToggleAudio() bool {
	next := !m.audioEnabled.Load()
	m.audioEnabled.Store(next)
	return next
}

// ToggleVideo flips the video source and reports the new enabled state.
func (m *Media) ToggleVideo() bool {
	next := !m.videoEnabled.Load()
	m.videoEnabled.Store(next)
	return next
}

// AudioEnabled reports whether audio frames are being emitted.
func (m *Media) AudioEnabled() bool { return m.audioEnabled.Load() }

// VideoEnabled reports whether video frames are being emitted.
func (m *Media) VideoEnabled() bool { return m.videoEnabled.Load() }

// Wait blocks until all media goroutines have exited.
func (m *Media) Wait() {
	m.wg.Wait()
}
