package media

import (
	"context"
	"strings"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
)

// DeviceSource captures from real hardware through pion/mediadevices.
// The platform drivers (camera, microphone, screen) are blank-imported
// by the binary, not here, so tests stay hardware-free.
type DeviceSource struct {
	codec *mediadevices.CodecSelector
}

var _ core.TrackSource = (*DeviceSource)(nil)

func NewDeviceSource() (*DeviceSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &DeviceSource{
		codec: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (s *DeviceSource) OpenCamera(_ context.Context, p core.VideoProfile) (core.LocalTrack, error) {
	deviceID := deviceForFacing(mediadevices.EnumerateDevices(), p.Facing)
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
			if p.Width > 0 {
				c.Width = prop.Int(p.Width)
			}
			if p.Height > 0 {
				c.Height = prop.Int(p.Height)
			}
		},
		Codec: s.codec,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceNotFound
	}
	return newDeviceTrack(tracks[0], webrtc.RTPCodecTypeVideo), nil
}

// OpenMicrophone grabs the default capture device. The profile's echo
// cancellation, noise suppression and auto gain flags have no effect
// here: the capture drivers hand over raw PCM and expose no DSP knobs,
// unlike the browser getUserMedia constraints they are named after.
// The flags still drive the advertised status so peers render intent.
func (s *DeviceSource) OpenMicrophone(_ context.Context, _ core.AudioProfile) (core.LocalTrack, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: s.codec,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceNotFound
	}
	return newDeviceTrack(tracks[0], webrtc.RTPCodecTypeAudio), nil
}

func (s *DeviceSource) OpenScreen(_ context.Context) (core.LocalTrack, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: s.codec,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceNotFound
	}
	return newDeviceTrack(tracks[0], webrtc.RTPCodecTypeVideo), nil
}

func (s *DeviceSource) Devices() []core.DeviceInfo {
	infos := mediadevices.EnumerateDevices()
	out := make([]core.DeviceInfo, 0, len(infos))
	for _, d := range infos {
		out = append(out, core.DeviceInfo{
			ID:    d.DeviceID,
			Label: d.Label,
			Kind:  deviceKind(d.Kind),
		})
	}
	return out
}

func deviceKind(k mediadevices.MediaDeviceType) string {
	switch k {
	case mediadevices.VideoInput:
		return "videoinput"
	case mediadevices.AudioInput:
		return "audioinput"
	case mediadevices.AudioOutput:
		return "audiooutput"
	}
	return "unknown"
}

// deviceForFacing picks a camera whose label suggests the requested
// facing, the closest the capture layer gets to the facingMode
// constraint. Desktop webcams rarely advertise one; no match means the
// default device.
func deviceForFacing(infos []mediadevices.MediaDeviceInfo, facing string) string {
	if facing == "" {
		return ""
	}
	keywords := []string{"front", "user", "facetime", "integrated"}
	if facing == "environment" {
		keywords = []string{"back", "rear", "environment", "world"}
	}
	for _, d := range infos {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		label := strings.ToLower(d.Label)
		for _, kw := range keywords {
			if strings.Contains(label, kw) {
				return d.DeviceID
			}
		}
	}
	return ""
}

// deviceTrack wraps a mediadevices track. The enabled flag is a local
// gate reported through the status broadcast; peers render the mute
// flag rather than the sender tearing the encoder down.
type deviceTrack struct {
	t    mediadevices.Track
	kind webrtc.RTPCodecType

	mu      sync.Mutex
	enabled bool
	closed  bool
	onEnded func()
}

func newDeviceTrack(t mediadevices.Track, kind webrtc.RTPCodecType) *deviceTrack {
	dt := &deviceTrack{t: t, kind: kind, enabled: true}
	t.OnEnded(func(error) {
		dt.mu.Lock()
		fn := dt.onEnded
		dt.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return dt
}

func (d *deviceTrack) Kind() webrtc.RTPCodecType     { return d.kind }
func (d *deviceTrack) TrackLocal() webrtc.TrackLocal { return d.t }

func (d *deviceTrack) SetEnabled(v bool) {
	d.mu.Lock()
	d.enabled = v
	d.mu.Unlock()
}

func (d *deviceTrack) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *deviceTrack) OnEnded(fn func()) {
	d.mu.Lock()
	d.onEnded = fn
	d.mu.Unlock()
}

func (d *deviceTrack) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.t.Close()
}
