package media

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
)

const syntheticStreamID = "meet-synthetic"

// SyntheticSource produces silence and black frames as RTP so a
// headless client can hold real peer connections without hardware.
type SyntheticSource struct{}

var _ core.TrackSource = (*SyntheticSource)(nil)

func NewSyntheticSource() *SyntheticSource { return &SyntheticSource{} }

func (s *SyntheticSource) OpenCamera(ctx context.Context, _ core.VideoProfile) (core.LocalTrack, error) {
	return newSyntheticTrack(ctx, webrtc.RTPCodecTypeVideo, "camera")
}

func (s *SyntheticSource) OpenMicrophone(ctx context.Context, _ core.AudioProfile) (core.LocalTrack, error) {
	return newSyntheticTrack(ctx, webrtc.RTPCodecTypeAudio, "microphone")
}

func (s *SyntheticSource) OpenScreen(ctx context.Context) (core.LocalTrack, error) {
	return newSyntheticTrack(ctx, webrtc.RTPCodecTypeVideo, "screen")
}

func (s *SyntheticSource) Devices() []core.DeviceInfo {
	return []core.DeviceInfo{
		{ID: "synthetic-camera", Label: "Synthetic camera", Kind: "videoinput"},
		{ID: "synthetic-microphone", Label: "Synthetic microphone", Kind: "audioinput"},
	}
}

type syntheticTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	kind   webrtc.RTPCodecType
	cancel context.CancelFunc

	mu      sync.Mutex
	enabled bool
	closed  bool
	onEnded func()
}

func newSyntheticTrack(ctx context.Context, kind webrtc.RTPCodecType, label string) (*syntheticTrack, error) {
	cap := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	interval := 100 * time.Millisecond
	payload := []byte{0x10, 0x00, 0x9d, 0x01, 0x2a} // VP8 payload header stub
	if kind == webrtc.RTPCodecTypeAudio {
		cap = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
		interval = 20 * time.Millisecond
		payload = []byte{0xf8, 0xff, 0xfe} // opus silence frame
	}

	track, err := webrtc.NewTrackLocalStaticRTP(cap, label, syntheticStreamID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &syntheticTrack{track: track, kind: kind, cancel: cancel, enabled: true}
	go st.writeLoop(ctx, interval, payload, cap.ClockRate)
	return st, nil
}

// writeLoop keeps the RTP clock running; when the gate is off it skips
// the payload but keeps timestamps advancing so receivers stay in sync.
func (t *syntheticTrack) writeLoop(ctx context.Context, interval time.Duration, payload []byte, clockRate uint32) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seq := uint16(rand.Intn(1 << 16))
	ts := rand.Uint32()
	ssrc := rand.Uint32()
	step := uint32(float64(clockRate) * interval.Seconds())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts += step
			if !t.Enabled() {
				continue
			}
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: payload,
			}
			seq++
			if err := t.track.WriteRTP(pkt); err != nil {
				// No subscriber yet; benign until the track is attached.
				continue
			}
		}
	}
}

func (t *syntheticTrack) Kind() webrtc.RTPCodecType     { return t.kind }
func (t *syntheticTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *syntheticTrack) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *syntheticTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *syntheticTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *syntheticTrack) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Explicit Close is not a source-end signal, so onEnded stays quiet.
	t.cancel()
	return nil
}
