package engine

import (
	"math"

	"github.com/rs/zerolog"
)

// Phase is the adapter lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
	PhasePlaying
	PhasePaused
	// PhaseDormant is held by an adapter without the session grant.
	PhaseDormant
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseDormant:
		return "dormant"
	default:
		return "unknown"
	}
}

// Navigation is the direction requested after an item ends.
type Navigation int

const (
	NavNext Navigation = iota
	NavFirst
)

// Intents receives what the adapter observed, for the owner to turn into
// store transitions. The adapter never mutates playlist state itself.
type Intents interface {
	Playing(itemID string)
	Paused(itemID string)
	Navigate(itemID string, nav Navigation)
	VolumeChanged(level float64)
	MuteChanged(muted bool)
	Failed(err *PlaybackError)
}

// Binding is the read-only view of what the adapter is bound to.
type Binding struct {
	Ticket          Ticket
	ItemID          string
	Ready           bool
	TimeSeconds     float64
	DurationSeconds float64
}

// Adapter keeps one Resource consistent with a desired Target.
//
// An Adapter is not safe for concurrent use. Resource events are handed to
// the executor given with WithExecutor, which must serialize them with every
// other call on the adapter.
type Adapter struct {
	name    string
	res     Resource
	intents Intents
	log     zerolog.Logger
	post    func(func())

	desired Target
	obs     Observed
	phase   Phase
	seq     uint64

	queue []func()
	busy  bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.log = l
	}
}

// WithExecutor routes resource events through post.
func WithExecutor(post func(func())) AdapterOption {
	return func(a *Adapter) {
		a.post = post
	}
}

// NewAdapter builds an idle adapter and its resource.
func NewAdapter(name string, factory ResourceFactory, intents Intents, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		name:    name,
		intents: intents,
		log:     zerolog.Nop(),
		post:    func(f func()) { f() },
		phase:   PhaseIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With().Str("adapter", name).Logger()
	a.res = factory(func(ev Event) {
		a.post(func() { a.HandleEvent(ev) })
	})
	return a
}

// Name returns the surface name the adapter was built for.
func (a *Adapter) Name() string {
	return a.name
}

// Phase returns the current lifecycle phase.
func (a *Adapter) Phase() Phase {
	return a.phase
}

// Binding returns the item the resource is bound to and its progress.
func (a *Adapter) Binding() Binding {
	return Binding{
		Ticket:          a.obs.Ticket,
		ItemID:          a.obs.Ticket.ItemID,
		Ready:           a.obs.Ready,
		TimeSeconds:     a.obs.Time,
		DurationSeconds: a.obs.Duration,
	}
}

// Desired returns the last applied target.
func (a *Adapter) Desired() Target {
	return a.desired
}

// Apply sets the desired state and reconciles toward it.
func (a *Adapter) Apply(target Target) {
	a.run(func() {
		prev := a.desired
		a.desired = target
		a.obs.Resting = false
		if a.obs.Failed && target.ShouldPlay && !prev.ShouldPlay && target.ItemID == a.obs.Ticket.ItemID {
			// retry after failure gets a fresh ticket
			a.obs.Ticket = Ticket{}
		}
		a.reconcile()
	})
}

// HandleEvent folds a resource event into the observed state. Events for
// any ticket other than the current one are dropped.
func (a *Adapter) HandleEvent(ev Event) {
	a.run(func() {
		if ev.Ticket.IsZero() || ev.Ticket != a.obs.Ticket {
			a.log.Debug().
				Str("event", ev.Kind.String()).
				Str("ticket", ev.Ticket.String()).
				Str("bound", a.obs.Ticket.String()).
				Msg("stale event dropped")
			return
		}
		a.handle(ev)
	})
}

func (a *Adapter) handle(ev Event) {
	id := a.obs.Ticket.ItemID

	switch ev.Kind {
	case EventMetadata:
		a.obs.Duration = ev.Duration
		a.obs.Ready = true
		a.phase = PhaseReady

	case EventTimeUpdate:
		a.obs.Time = ev.Position
		return

	case EventPlaying:
		a.obs.Playing = true
		a.obs.PlayPending = false
		a.phase = PhasePlaying
		if a.desired.ShouldPlay {
			a.report(func() { a.intents.Playing(id) })
		}

	case EventPaused:
		was := a.obs.Playing
		a.obs.Playing = false
		a.obs.PlayPending = false
		if a.obs.Ready {
			a.phase = PhasePaused
		}
		if was && a.desired.ShouldPlay {
			a.obs.Resting = true
			a.report(func() { a.intents.Paused(id) })
		}

	case EventPlayRejected:
		a.obs.Playing = false
		a.obs.PlayPending = false
		a.obs.Resting = true
		a.phase = PhasePaused
		cause := ev.Err
		if cause == nil {
			cause = ErrPlaybackRejected
		}
		a.fail(FailurePlayback, cause)

	case EventEnded:
		a.obs.Playing = false
		a.obs.PlayPending = false
		a.obs.Resting = true
		a.res.Seek(0)
		a.obs.Time = 0
		a.phase = PhasePaused
		switch {
		case !a.desired.IsLast:
			a.report(func() { a.intents.Navigate(id, NavNext) })
		case a.desired.Loop:
			a.report(func() { a.intents.Navigate(id, NavFirst) })
		default:
			a.report(func() { a.intents.Paused(id) })
		}

	case EventError:
		kind := FailurePlayback
		if !a.obs.Ready {
			kind = FailureLoad
		}
		a.obs.Failed = true
		a.obs.Playing = false
		a.obs.PlayPending = false
		a.phase = PhasePaused
		a.fail(kind, ev.Err)
	}

	a.reconcile()
}

// Scrub seeks to a normalized position in [0,1]. It is ignored until the
// resource has reported its duration.
func (a *Adapter) Scrub(pos float64) {
	a.run(func() {
		if !a.desired.bound() || !a.obs.Ready || a.obs.Duration <= 0 || math.IsNaN(pos) {
			return
		}
		pos = min(max(pos, 0), 1)
		secs := pos * a.obs.Duration
		a.res.Seek(secs)
		a.obs.Time = secs
	})
}

// SetVolume applies a user-chosen level and reports it upward. A non-zero
// level also clears mute.
func (a *Adapter) SetVolume(level float64) {
	a.run(func() {
		if !a.desired.bound() || math.IsNaN(level) {
			return
		}
		level = min(max(level, 0), 1)
		a.res.SetVolume(level)
		a.obs.Volume = level
		a.obs.VolumeApplied = true
		if level > 0 && a.obs.Muted {
			a.res.SetMuted(false)
			a.obs.Muted = false
			a.obs.MutedApplied = true
			a.report(func() { a.intents.MuteChanged(false) })
		}
		a.report(func() { a.intents.VolumeChanged(level) })
	})
}

// ToggleMute flips mute on the resource and reports it upward.
func (a *Adapter) ToggleMute() {
	a.run(func() {
		if !a.desired.bound() {
			return
		}
		muted := !a.obs.Muted
		a.res.SetMuted(muted)
		a.obs.Muted = muted
		a.obs.MutedApplied = true
		a.report(func() { a.intents.MuteChanged(muted) })
	})
}

// Close releases the resource.
func (a *Adapter) Close() error {
	a.phase = PhaseDormant
	return a.res.Close()
}

func (a *Adapter) reconcile() {
	for _, cmd := range Reconcile(a.desired, a.obs) {
		a.execute(cmd)
	}
}

func (a *Adapter) execute(cmd Command) {
	a.log.Debug().Str("cmd", cmd.String()).Msg("resource command")

	switch cmd.Op {
	case OpLoad:
		a.seq++
		t := Ticket{ItemID: cmd.ItemID, Seq: a.seq}
		a.obs = Observed{
			Ticket:        t,
			URL:           cmd.URL,
			Volume:        a.obs.Volume,
			VolumeApplied: a.obs.VolumeApplied,
			Muted:         a.obs.Muted,
			MutedApplied:  a.obs.MutedApplied,
			SeekPending:   cmd.StartAt > 0,
			SeekTarget:    cmd.StartAt,
		}
		a.phase = PhaseLoading
		if cmd.URL == "" {
			a.obs.Failed = true
			a.phase = PhasePaused
			a.fail(FailureLoad, ErrMissingURL)
			return
		}
		a.res.Load(t, cmd.URL, cmd.Kind)

	case OpUnload:
		a.res.Unload()
		a.obs = Observed{
			Volume:        a.obs.Volume,
			VolumeApplied: a.obs.VolumeApplied,
			Muted:         a.obs.Muted,
			MutedApplied:  a.obs.MutedApplied,
		}
		a.phase = PhaseDormant

	case OpPlay:
		a.obs.PlayPending = true
		a.res.Play(a.obs.Ticket)

	case OpPause:
		a.res.Pause()
		a.obs.Playing = false
		a.obs.PlayPending = false
		if a.obs.Ready {
			a.phase = PhasePaused
		}

	case OpSeek:
		a.res.Seek(cmd.Seconds)
		a.obs.Time = cmd.Seconds
		a.obs.SeekPending = false

	case OpSetVolume:
		a.res.SetVolume(cmd.Volume)
		a.obs.Volume = cmd.Volume
		a.obs.VolumeApplied = true

	case OpSetMuted:
		a.res.SetMuted(cmd.Muted)
		a.obs.Muted = cmd.Muted
		a.obs.MutedApplied = true
	}
}

// fail reports an item-scoped failure followed by a paused intent.
func (a *Adapter) fail(kind FailureKind, cause error) {
	perr := &PlaybackError{ItemID: a.obs.Ticket.ItemID, Kind: kind, Err: cause}
	a.log.Warn().Err(perr).Msg("playback failure")
	id := perr.ItemID
	a.report(func() {
		a.intents.Failed(perr)
		a.intents.Paused(id)
	})
}

func (a *Adapter) report(f func()) {
	a.queue = append(a.queue, f)
}

// run executes step and then everything it queued, in order. Calls made
// from inside an intent are queued behind the current step.
func (a *Adapter) run(step func()) {
	a.queue = append(a.queue, step)
	if a.busy {
		return
	}
	a.busy = true
	for len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		next()
	}
	a.busy = false
}
