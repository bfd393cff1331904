// Package media owns local capture: camera, microphone and screen
// tracks. Nothing else may add or remove tracks on the local stream.
package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// Change tells the session what kind of update happened so it can
// fan the right thing out (status flags vs track replacement).
type Change int

const (
	ChangeStarted Change = iota
	ChangeVideo
	ChangeAudio
	ChangeScreen
	ChangeStopped
)

// Manager is the only owner of the local media state. Its methods are
// called from the session loop; the internal mutex covers the
// source-end callback that arrives from a capture goroutine.
type Manager struct {
	source  core.TrackSource
	profile core.VideoProfile
	audio   core.AudioProfile

	mu         sync.Mutex
	started    bool
	acquiring  bool
	camera     core.LocalTrack
	microphone core.LocalTrack
	screen     core.LocalTrack

	onUpdate func(Change)
}

func NewManager(source core.TrackSource, profile core.VideoProfile) *Manager {
	return &Manager{
		source:  source,
		profile: profile,
		audio: core.AudioProfile{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
}

// OnUpdate registers the single observer (the session). Replaces any
// previous observer.
func (m *Manager) OnUpdate(fn func(Change)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

func (m *Manager) notify(c Change) {
	m.mu.Lock()
	fn := m.onUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Start acquires the requested devices. A failed start leaves nothing
// half-held: any track acquired before the failure is released. Start
// is single-flight: while one acquisition is in progress, a concurrent
// Start returns as if already started, so two racing joins can never
// hold two camera handles with one of them orphaned.
func (m *Manager) Start(ctx context.Context, video, audio bool) error {
	m.mu.Lock()
	if m.started || m.acquiring {
		m.mu.Unlock()
		return nil
	}
	m.acquiring = true
	m.mu.Unlock()

	var cam, mic core.LocalTrack
	var err error

	if video {
		cam, err = m.source.OpenCamera(ctx, m.profile)
		if err != nil {
			m.mu.Lock()
			m.acquiring = false
			m.mu.Unlock()
			return fmt.Errorf("open camera: %w", classify(err))
		}
	}
	if audio {
		mic, err = m.source.OpenMicrophone(ctx, m.audio)
		if err != nil {
			if cam != nil {
				_ = cam.Close()
			}
			m.mu.Lock()
			m.acquiring = false
			m.mu.Unlock()
			return fmt.Errorf("open microphone: %w", classify(err))
		}
	}

	m.mu.Lock()
	m.camera = cam
	m.microphone = mic
	m.started = true
	m.acquiring = false
	m.mu.Unlock()

	log.Info().Str("module", "media").Bool("video", video).Bool("audio", audio).Msg("capture started")
	m.notify(ChangeStarted)
	return nil
}

// ToggleVideo releases the camera entirely when turning off (the
// hardware indicator must go dark, muting is not enough) and
// re-acquires a fresh track when turning back on.
func (m *Manager) ToggleVideo(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return false, ErrNotStarted
	}
	cam := m.camera
	m.mu.Unlock()

	if cam != nil {
		_ = cam.Close()
		m.mu.Lock()
		m.camera = nil
		m.mu.Unlock()
		log.Info().Str("module", "media").Msg("camera released")
		m.notify(ChangeVideo)
		return false, nil
	}

	fresh, err := m.source.OpenCamera(ctx, m.profile)
	if err != nil {
		return false, fmt.Errorf("reacquire camera: %w", classify(err))
	}
	m.mu.Lock()
	m.camera = fresh
	m.mu.Unlock()
	log.Info().Str("module", "media").Msg("camera reacquired")
	m.notify(ChangeVideo)
	return true, nil
}

// ToggleAudio flips the gate in place; the microphone stays held.
func (m *Manager) ToggleAudio() (bool, error) {
	m.mu.Lock()
	mic := m.microphone
	m.mu.Unlock()

	if mic == nil {
		return false, ErrNotStarted
	}
	next := !mic.Enabled()
	mic.SetEnabled(next)
	log.Info().Str("module", "media").Bool("enabled", next).Msg("microphone toggled")
	m.notify(ChangeAudio)
	return next, nil
}

// SwitchCamera flips between user and environment facing without
// touching the audio track.
func (m *Manager) SwitchCamera(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.camera == nil {
		m.mu.Unlock()
		return ErrNotStarted
	}
	cam := m.camera
	m.mu.Unlock()

	next := m.profile
	if next.Facing == "environment" {
		next.Facing = "user"
	} else {
		next.Facing = "environment"
	}

	_ = cam.Close()
	fresh, err := m.source.OpenCamera(ctx, next)
	if err != nil {
		m.mu.Lock()
		m.camera = nil
		m.mu.Unlock()
		m.notify(ChangeVideo)
		return fmt.Errorf("switch camera: %w", classify(err))
	}

	m.mu.Lock()
	m.camera = fresh
	m.profile = next
	m.mu.Unlock()
	m.notify(ChangeVideo)
	return nil
}

// StartScreenShare swaps the outgoing video for a screen capture and
// restores the camera when the source ends on its own.
func (m *Manager) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.screen != nil {
		m.mu.Unlock()
		return nil
	}
	cam := m.camera
	m.mu.Unlock()

	screen, err := m.source.OpenScreen(ctx)
	if err != nil {
		return fmt.Errorf("open screen: %w", classify(err))
	}

	if cam != nil {
		_ = cam.Close()
	}

	m.mu.Lock()
	m.camera = nil
	m.screen = screen
	m.mu.Unlock()

	screen.OnEnded(func() {
		// Native "stop sharing" from the source goroutine.
		if err := m.StopScreenShare(ctx); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("restore camera after screen end")
		}
	})

	log.Info().Str("module", "media").Msg("screen share started")
	m.notify(ChangeScreen)
	return nil
}

func (m *Manager) StopScreenShare(ctx context.Context) error {
	m.mu.Lock()
	screen := m.screen
	m.screen = nil
	started := m.started
	m.mu.Unlock()

	if screen == nil {
		return nil
	}
	_ = screen.Close()

	if !started {
		return nil
	}

	cam, err := m.source.OpenCamera(ctx, m.profile)
	if err != nil {
		m.notify(ChangeScreen)
		return fmt.Errorf("restore camera: %w", classify(err))
	}
	m.mu.Lock()
	m.camera = cam
	m.mu.Unlock()

	log.Info().Str("module", "media").Msg("screen share stopped, camera restored")
	m.notify(ChangeScreen)
	return nil
}

// Stop releases everything. Safe from any state, on every exit path.
func (m *Manager) Stop() {
	m.mu.Lock()
	cam, mic, screen := m.camera, m.microphone, m.screen
	m.camera, m.microphone, m.screen = nil, nil, nil
	was := m.started
	m.started = false
	m.mu.Unlock()

	for _, t := range []core.LocalTrack{cam, mic, screen} {
		if t != nil {
			_ = t.Close()
		}
	}
	if was {
		log.Info().Str("module", "media").Msg("capture stopped")
		m.notify(ChangeStopped)
	}
}

// VideoTrack is the current outgoing video (screen wins over camera).
// Nil when video is off.
func (m *Manager) VideoTrack() webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != nil {
		return m.screen.TrackLocal()
	}
	if m.camera != nil {
		return m.camera.TrackLocal()
	}
	return nil
}

func (m *Manager) AudioTrack() webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.microphone == nil {
		return nil
	}
	return m.microphone.TrackLocal()
}

// Tracks returns what should be attached to a fresh peer link.
func (m *Manager) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if a := m.AudioTrack(); a != nil {
		out = append(out, a)
	}
	if v := m.VideoTrack(); v != nil {
		out = append(out, v)
	}
	return out
}

func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera != nil || m.screen != nil
}

func (m *Manager) AudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.microphone != nil && m.microphone.Enabled()
}

func (m *Manager) ScreenSharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

func (m *Manager) Devices() []core.DeviceInfo {
	return m.source.Devices()
}
