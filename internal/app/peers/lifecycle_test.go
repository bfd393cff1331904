package peers

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
)

func TestGracePeriodReapsDeadLink(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.links["s1"].onState(core.LinkFailed)
	h.drain()
	require.Equal(t, 1, h.orch.Count(), "link survives until the grace period elapses")

	// The timer posts the reap back onto the loop.
	select {
	case fn := <-h.queue:
		fn()
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	assert.Equal(t, 0, h.orch.Count())
	assert.True(t, h.links["s1"].closed)
}

func TestRecoveryWithinGraceCancelsReap(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.links["s1"].onState(core.LinkDisconnected)
	h.drain()
	h.links["s1"].onState(core.LinkConnected)
	h.drain()

	// Even if a stale timer callback slips through, the recovered link
	// must not be reaped.
	h.orch.reapIfStillDown("s1")
	assert.Equal(t, 1, h.orch.Count())
	assert.False(t, h.links["s1"].closed)

	st, ok := h.orch.State("s1")
	require.True(t, ok)
	assert.Equal(t, core.LinkConnected, st)
}

func TestFlappingDoesNotStackTimers(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.links["s1"].onState(core.LinkDisconnected)
	h.drain()
	h.links["s1"].onState(core.LinkFailed)
	h.drain()

	entry := h.orch.links["s1"]
	require.NotNil(t, entry.graceTimer)
	assert.Equal(t, core.LinkFailed, entry.State)
}

func TestClosedStateRemovesLink(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.links["s1"].onState(core.LinkClosed)
	h.drain()
	assert.Equal(t, 0, h.orch.Count())
}

func TestReplaceVideoTrackAddsWhenSenderMissing(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s2"})

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "local",
	)
	require.NoError(t, err)

	h.orch.ReplaceVideoTrack(track)
	assert.Len(t, h.links["s1"].added, 1)
	assert.Len(t, h.links["s2"].added, 1)

	// A nil track with no sender attached changes nothing.
	h2 := newHarness(t, 0)
	h2.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	h2.orch.ReplaceVideoTrack(nil)
	assert.Empty(t, h2.links["s1"].added)
}

func TestCloseAllIsUnconditional(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s2"})
	h.links["s1"].onState(core.LinkDisconnected)
	h.drain()

	h.orch.CloseAll()
	assert.Equal(t, 0, h.orch.Count())
	assert.True(t, h.links["s1"].closed)
	assert.True(t, h.links["s2"].closed)
	assert.Empty(t, h.orch.Sessions())

	// Second CloseAll on an empty table is fine.
	h.orch.CloseAll()
}

func TestRemoteNilSafety(t *testing.T) {
	h := newHarness(t, 0)
	assert.Nil(t, h.orch.Remote("ghost"))

	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	assert.Nil(t, h.orch.Remote("s1"), "no inbound media bound yet")

	var media *core.RemoteMedia
	assert.False(t, media.HasLiveVideo())
	assert.False(t, media.HasLiveAudio())
}
