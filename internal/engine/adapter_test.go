package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cli_player/internal/playlist"
)

type fakeResource struct {
	sink   Sink
	calls  []string
	loads  []Ticket
	closed bool
}

func (f *fakeResource) Load(t Ticket, _ string, _ playlist.MediaKind) {
	f.loads = append(f.loads, t)
	f.calls = append(f.calls, "load:"+t.ItemID)
}

func (f *fakeResource) Play(Ticket) { f.calls = append(f.calls, "play") }

func (f *fakeResource) Pause() { f.calls = append(f.calls, "pause") }

func (f *fakeResource) Seek(s float64) { f.calls = append(f.calls, fmt.Sprintf("seek:%.1f", s)) }

func (f *fakeResource) SetVolume(v float64) { f.calls = append(f.calls, fmt.Sprintf("volume:%.2f", v)) }

func (f *fakeResource) SetMuted(m bool) { f.calls = append(f.calls, fmt.Sprintf("muted:%t", m)) }

func (f *fakeResource) Unload() { f.calls = append(f.calls, "unload") }

func (f *fakeResource) Close() error {
	f.closed = true
	return nil
}

func (f *fakeResource) emit(ev Event) { f.sink(ev) }

func (f *fakeResource) ticket() Ticket { return f.loads[len(f.loads)-1] }

func (f *fakeResource) reset() { f.calls = nil }

func (f *fakeResource) ready(duration float64) {
	f.emit(Event{Ticket: f.ticket(), Kind: EventMetadata, Duration: duration})
}

type recorder struct {
	got      []string
	failures []*PlaybackError
}

func (r *recorder) Playing(id string) { r.got = append(r.got, "playing:"+id) }
func (r *recorder) Paused(id string)  { r.got = append(r.got, "paused:"+id) }
func (r *recorder) Navigate(id string, nav Navigation) {
	if nav == NavFirst {
		r.got = append(r.got, "first:"+id)
		return
	}
	r.got = append(r.got, "next:"+id)
}
func (r *recorder) VolumeChanged(v float64) { r.got = append(r.got, fmt.Sprintf("volume:%.2f", v)) }
func (r *recorder) MuteChanged(m bool)      { r.got = append(r.got, fmt.Sprintf("mute:%t", m)) }
func (r *recorder) Failed(err *PlaybackError) {
	r.failures = append(r.failures, err)
	r.got = append(r.got, "failed:"+err.ItemID)
}

func newTestAdapter(t *testing.T, intents Intents) (*Adapter, *fakeResource) {
	t.Helper()
	res := &fakeResource{}
	a := NewAdapter("test", func(sink Sink) Resource {
		res.sink = sink
		return res
	}, intents)
	return a, res
}

func TestAdapter_LoadsThenPlaysOnceReady(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	assert.Equal(t, PhaseIdle, a.Phase())

	a.Apply(desiredFor("a", true))
	assert.Equal(t, []string{"volume:0.80", "muted:false", "load:a"}, res.calls)
	assert.Equal(t, PhaseLoading, a.Phase())
	assert.False(t, a.Binding().Ready)

	res.reset()
	res.ready(120)
	assert.Equal(t, []string{"play"}, res.calls)
	assert.Equal(t, 120.0, a.Binding().DurationSeconds)

	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})
	assert.Equal(t, PhasePlaying, a.Phase())
	assert.Equal(t, []string{"playing:a"}, rec.got)
}

func TestAdapter_ApplyIsIdempotent(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})

	res.reset()
	a.Apply(desiredFor("a", true))
	a.Apply(desiredFor("a", true))
	assert.Empty(t, res.calls)
}

func TestAdapter_PauseIsSynchronous(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})
	rec.got = nil

	res.reset()
	a.Apply(desiredFor("a", false))
	assert.Equal(t, []string{"pause"}, res.calls)
	assert.Equal(t, PhasePaused, a.Phase())

	// the resource confirming our own pause is not reported back up
	res.emit(Event{Ticket: res.ticket(), Kind: EventPaused})
	assert.Empty(t, rec.got)
}

func TestAdapter_ExternalPauseIsReported(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})

	res.emit(Event{Ticket: res.ticket(), Kind: EventPaused})
	assert.Equal(t, []string{"playing:a", "paused:a"}, rec.got)
}

func TestAdapter_ItemChangeResetsBinding(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventTimeUpdate, Position: 30})
	assert.Equal(t, 30.0, a.Binding().TimeSeconds)

	a.Apply(desiredFor("b", true))
	b := a.Binding()
	assert.Equal(t, "b", b.ItemID)
	assert.False(t, b.Ready)
	assert.Zero(t, b.TimeSeconds)
	assert.Zero(t, b.DurationSeconds)
	assert.Equal(t, PhaseLoading, a.Phase())
}

func TestAdapter_LateReadyForPreviousItemIsDropped(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)

	a.Apply(desiredFor("x", true))
	stale := res.ticket()
	a.Apply(desiredFor("y", true))

	res.reset()
	res.emit(Event{Ticket: stale, Kind: EventMetadata, Duration: 99})
	res.emit(Event{Ticket: stale, Kind: EventPlaying})

	assert.Empty(t, res.calls)
	assert.Empty(t, rec.got)
	assert.Equal(t, "y", a.Binding().ItemID)
	assert.False(t, a.Binding().Ready)
	assert.Equal(t, PhaseLoading, a.Phase())

	res.ready(10)
	assert.Equal(t, []string{"play"}, res.calls)
}

func TestAdapter_SameItemReloadGetsNewTicket(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	a.Apply(desiredFor("a", false))
	first := res.ticket()

	a.Apply(Target{})
	a.Apply(desiredFor("a", false))

	assert.NotEqual(t, first, res.ticket())
	assert.Equal(t, "a", res.ticket().ItemID)

	res.emit(Event{Ticket: first, Kind: EventMetadata, Duration: 5})
	assert.False(t, a.Binding().Ready)
}

func TestAdapter_PlayRejected(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))
	res.ready(60)

	res.emit(Event{Ticket: res.ticket(), Kind: EventPlayRejected})

	assert.Equal(t, []string{"failed:a", "paused:a"}, rec.got)
	require.Len(t, rec.failures, 1)
	assert.Equal(t, FailurePlayback, rec.failures[0].Kind)
	assert.ErrorIs(t, rec.failures[0], ErrPlaybackRejected)
	assert.Equal(t, PhasePaused, a.Phase())
}

func TestAdapter_ErrorBeforeReadyIsLoadFailure(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))

	cause := errors.New("404")
	res.reset()
	res.emit(Event{Ticket: res.ticket(), Kind: EventError, Err: cause})

	assert.Equal(t, []string{"failed:a", "paused:a"}, rec.got)
	require.Len(t, rec.failures, 1)
	assert.Equal(t, FailureLoad, rec.failures[0].Kind)
	assert.ErrorIs(t, rec.failures[0], cause)
	assert.Empty(t, res.calls)

	var perr *PlaybackError
	require.ErrorAs(t, error(rec.failures[0]), &perr)
	assert.Equal(t, "a", perr.ItemID)
}

func TestAdapter_ErrorWhilePlayingIsPlaybackFailure(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})

	res.emit(Event{Ticket: res.ticket(), Kind: EventError, Err: errors.New("decode")})

	require.Len(t, rec.failures, 1)
	assert.Equal(t, FailurePlayback, rec.failures[0].Kind)
	assert.Equal(t, PhasePaused, a.Phase())
}

func TestAdapter_MissingURL(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)

	target := desiredFor("a", true)
	target.URL = ""
	a.Apply(target)

	assert.NotContains(t, res.calls, "load:a")
	require.Len(t, rec.failures, 1)
	assert.ErrorIs(t, rec.failures[0], ErrMissingURL)
	assert.Equal(t, FailureLoad, rec.failures[0].Kind)
	assert.Equal(t, []string{"failed:a", "paused:a"}, rec.got)
}

func TestAdapter_RetryAfterFailureRebinds(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	a.Apply(desiredFor("a", true))
	first := res.ticket()
	res.emit(Event{Ticket: first, Kind: EventError, Err: errors.New("timeout")})

	a.Apply(desiredFor("a", false))
	a.Apply(desiredFor("a", true))

	require.Len(t, res.loads, 2)
	assert.NotEqual(t, first, res.ticket())
}

func TestAdapter_Ended(t *testing.T) {
	tests := []struct {
		name   string
		isLast bool
		loop   bool
		want   string
	}{
		{"advances when not last", false, false, "next:a"},
		{"wraps on last with loop", true, true, "first:a"},
		{"pauses on last without loop", true, false, "paused:a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a, res := newTestAdapter(t, rec)
			target := desiredFor("a", true)
			target.IsLast = tt.isLast
			target.Loop = tt.loop
			a.Apply(target)
			res.ready(60)
			res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})
			rec.got = nil

			res.reset()
			res.emit(Event{Ticket: res.ticket(), Kind: EventEnded})

			assert.Equal(t, []string{tt.want}, rec.got)
			assert.Equal(t, []string{"seek:0.0"}, res.calls)
			assert.NotEqual(t, PhasePlaying, a.Phase())
		})
	}
}

func TestAdapter_EndedSingleItemLoopReplays(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	target := desiredFor("a", true)
	target.IsLast = true
	target.Loop = true
	a.Apply(target)
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})
	res.emit(Event{Ticket: res.ticket(), Kind: EventEnded})

	// the owner answers the wrap with the same target
	res.reset()
	a.Apply(target)

	assert.Equal(t, []string{"play"}, res.calls)
}

func TestAdapter_Scrub(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	a.Apply(desiredFor("a", false))

	res.reset()
	a.Scrub(0.5)
	assert.Empty(t, res.calls, "ignored before ready")

	res.ready(120)
	res.reset()
	a.Scrub(0.5)
	a.Scrub(2)
	a.Scrub(-1)
	assert.Equal(t, []string{"seek:60.0", "seek:120.0", "seek:0.0"}, res.calls)
	assert.Zero(t, a.Binding().TimeSeconds)
}

func TestAdapter_StartAtSeeksBeforePlay(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	target := desiredFor("a", true)
	target.StartAt = 42
	a.Apply(target)

	res.reset()
	res.ready(100)
	assert.Equal(t, []string{"seek:42.0", "play"}, res.calls)
	assert.Equal(t, 42.0, a.Binding().TimeSeconds)
}

func TestAdapter_UserVolumeClearsMute(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	target := desiredFor("a", false)
	target.Muted = true
	a.Apply(target)

	res.reset()
	a.SetVolume(0.4)

	assert.Equal(t, []string{"volume:0.40", "muted:false"}, res.calls)
	assert.Equal(t, []string{"mute:false", "volume:0.40"}, rec.got)
}

func TestAdapter_UserVolumeZeroKeepsMuteUntouched(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", false))

	res.reset()
	a.SetVolume(-3)

	assert.Equal(t, []string{"volume:0.00"}, res.calls)
	assert.Equal(t, []string{"volume:0.00"}, rec.got)
}

func TestAdapter_ToggleMute(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", false))

	res.reset()
	a.ToggleMute()
	a.ToggleMute()

	assert.Equal(t, []string{"muted:true", "muted:false"}, res.calls)
	assert.Equal(t, []string{"mute:true", "mute:false"}, rec.got)
}

func TestAdapter_RevokedGrantGoesDormant(t *testing.T) {
	rec := &recorder{}
	a, res := newTestAdapter(t, rec)
	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})
	bound := res.ticket()
	rec.got = nil

	res.reset()
	target := desiredFor("a", true)
	target.Active = false
	a.Apply(target)

	assert.Equal(t, []string{"pause", "unload"}, res.calls)
	assert.Equal(t, PhaseDormant, a.Phase())
	assert.Empty(t, a.Binding().ItemID)

	res.reset()
	res.emit(Event{Ticket: bound, Kind: EventEnded})
	a.SetVolume(0.2)
	a.ToggleMute()
	a.Scrub(0.5)
	assert.Empty(t, res.calls)
	assert.Empty(t, rec.got)
}

// reentrant answers every intent by applying a new target, the way a
// store-backed owner does.
type reentrant struct {
	recorder
	a    *Adapter
	next Target
}

func (r *reentrant) Navigate(id string, nav Navigation) {
	r.recorder.Navigate(id, nav)
	r.a.Apply(r.next)
}

func TestAdapter_ReentrantApplyRunsAfterCurrentStep(t *testing.T) {
	owner := &reentrant{next: desiredFor("b", true)}
	a, res := newTestAdapter(t, owner)
	owner.a = a

	a.Apply(desiredFor("a", true))
	res.ready(60)
	res.emit(Event{Ticket: res.ticket(), Kind: EventPlaying})

	res.reset()
	res.emit(Event{Ticket: res.ticket(), Kind: EventEnded})

	assert.Equal(t, []string{"seek:0.0", "load:b"}, res.calls)
	assert.Equal(t, "b", a.Binding().ItemID)
}

func TestAdapter_EventsGoThroughExecutor(t *testing.T) {
	var posted []func()
	res := &fakeResource{}
	a := NewAdapter("test", func(sink Sink) Resource {
		res.sink = sink
		return res
	}, &recorder{}, WithExecutor(func(f func()) { posted = append(posted, f) }))

	a.Apply(desiredFor("a", true))
	res.ready(60)
	assert.False(t, a.Binding().Ready)
	require.Len(t, posted, 1)

	posted[0]()
	assert.True(t, a.Binding().Ready)
}

func TestAdapter_Close(t *testing.T) {
	a, res := newTestAdapter(t, &recorder{})
	require.NoError(t, a.Close())
	assert.True(t, res.closed)
	assert.Equal(t, PhaseDormant, a.Phase())
}
