package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cli_player/internal/playlist"
)

func desiredFor(id string, play bool) Target {
	return Target{
		ItemID:     id,
		URL:        "https://media.test/" + id + ".mp3",
		Kind:       playlist.KindAudio,
		ShouldPlay: play,
		Volume:     0.8,
		Active:     true,
	}
}

func observedFor(id string) Observed {
	return Observed{
		Ticket:        Ticket{ItemID: id, Seq: 1},
		URL:           "https://media.test/" + id + ".mp3",
		Ready:         true,
		Volume:        0.8,
		VolumeApplied: true,
		MutedApplied:  true,
	}
}

func ops(cmds []Command) []Op {
	out := make([]Op, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Op)
	}
	return out
}

func TestReconcile(t *testing.T) {
	playing := observedFor("a")
	playing.Playing = true

	pending := observedFor("a")
	pending.PlayPending = true

	notReady := observedFor("a")
	notReady.Ready = false

	failed := observedFor("a")
	failed.Failed = true

	seek := observedFor("a")
	seek.SeekPending = true
	seek.SeekTarget = 42

	resting := observedFor("a")
	resting.Resting = true

	quieter := desiredFor("a", false)
	quieter.Volume = 0.3

	muted := desiredFor("a", false)
	muted.Muted = true

	inactive := desiredFor("a", true)
	inactive.Active = false

	tests := []struct {
		name     string
		desired  Target
		observed Observed
		want     []Op
	}{
		{"nothing to do when unbound", Target{}, Observed{}, []Op{}},
		{"fresh bind pushes audio then loads", desiredFor("a", true), Observed{}, []Op{OpSetVolume, OpSetMuted, OpLoad}},
		{"item change pauses then loads", desiredFor("b", true), playing, []Op{OpPause, OpLoad}},
		{"play when ready", desiredFor("a", true), observedFor("a"), []Op{OpPlay}},
		{"play is a no-op when already playing", desiredFor("a", true), playing, []Op{}},
		{"play is a no-op when pending", desiredFor("a", true), pending, []Op{}},
		{"no play before ready", desiredFor("a", true), notReady, []Op{}},
		{"no play after failure", desiredFor("a", true), failed, []Op{}},
		{"no play while resting", desiredFor("a", true), resting, []Op{}},
		{"pause when playing", desiredFor("a", false), playing, []Op{OpPause}},
		{"pause when pending", desiredFor("a", false), pending, []Op{OpPause}},
		{"pause is a no-op when paused", desiredFor("a", false), observedFor("a"), []Op{}},
		{"seek before play", desiredFor("a", true), seek, []Op{OpSeek, OpPlay}},
		{"volume change", quieter, observedFor("a"), []Op{OpSetVolume}},
		{"mute change", muted, observedFor("a"), []Op{OpSetMuted}},
		{"revoked grant pauses and unloads", inactive, playing, []Op{OpPause, OpUnload}},
		{"revoked grant with nothing bound", inactive, Observed{}, []Op{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ops(Reconcile(tt.desired, tt.observed)))
		})
	}
}

func TestReconcile_LoadCarriesStartAt(t *testing.T) {
	d := desiredFor("a", true)
	d.StartAt = 12.5

	cmds := Reconcile(d, Observed{VolumeApplied: true, MutedApplied: true, Volume: 0.8})

	assert.Equal(t, []Command{{
		Op:      OpLoad,
		ItemID:  "a",
		URL:     d.URL,
		Kind:    playlist.KindAudio,
		StartAt: 12.5,
	}}, cmds)
}

func TestReconcile_URLChangeReloads(t *testing.T) {
	d := desiredFor("a", false)
	d.URL = "https://media.test/other.mp3"

	assert.Equal(t, []Op{OpLoad}, ops(Reconcile(d, observedFor("a"))))
}

func TestReconcile_Idempotent(t *testing.T) {
	d := desiredFor("a", true)
	o := observedFor("a")

	first := Reconcile(d, o)
	assert.Equal(t, first, Reconcile(d, o))

	o.PlayPending = true
	assert.Empty(t, Reconcile(d, o))
}
