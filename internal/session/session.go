// Package session coordinates the playlist store with the two playback
// surfaces. It decides which surface is audible, forwards transport
// controls and turns adapter intents into store transitions.
package session

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cli_player/internal/engine"
	"cli_player/internal/playlist"
)

// Surface names a rendering surface.
type Surface int

const (
	SurfaceMini Surface = iota
	SurfaceExpanded
)

func (s Surface) String() string {
	if s == SurfaceExpanded {
		return "expanded"
	}
	return "mini"
}

// Grant is the ownership token. Only the surface holding it may be bound to
// an active resource.
type Grant struct {
	Surface Surface
	Token   uuid.UUID
	Since   time.Time
}

// Options configures a Session.
type Options struct {
	Mini     engine.ResourceFactory
	Expanded engine.ResourceFactory
	Logger   zerolog.Logger
	// Post serializes resource events with everything else. Defaults to
	// running them inline.
	Post    func(func())
	OnError func(error)
	Clock   func() time.Time
}

// Session is the single owner of playback authority. It is not safe for
// concurrent use; drive it from one Loop.
type Session struct {
	store    *playlist.Store
	log      zerolog.Logger
	adapters [2]*engine.Adapter
	grant    Grant
	now      func() time.Time

	expanded  bool
	panelOpen bool

	onError func(error)
	lastErr error

	unsubscribe func()
}

// New builds a session over store. Both adapters start idle with the mini
// surface holding the grant.
func New(store *playlist.Store, opts Options) *Session {
	s := &Session{
		store:   store,
		log:     opts.Logger.With().Str("component", "session").Logger(),
		now:     opts.Clock,
		onError: opts.OnError,
	}
	if s.now == nil {
		s.now = time.Now
	}

	engineLog := opts.Logger.With().Str("component", "engine").Logger()
	adapterOpts := []engine.AdapterOption{engine.WithLogger(engineLog)}
	if opts.Post != nil {
		adapterOpts = append(adapterOpts, engine.WithExecutor(opts.Post))
	}
	s.adapters[SurfaceMini] = engine.NewAdapter(SurfaceMini.String(), opts.Mini, &surfaceIntents{s: s, surface: SurfaceMini}, adapterOpts...)
	s.adapters[SurfaceExpanded] = engine.NewAdapter(SurfaceExpanded.String(), opts.Expanded, &surfaceIntents{s: s, surface: SurfaceExpanded}, adapterOpts...)

	s.grant = s.newGrant(SurfaceMini)
	s.unsubscribe = store.Subscribe(s.onState)
	s.sync(store.Snapshot(), 0)
	return s
}

// Grant returns the current ownership token.
func (s *Session) Grant() Grant {
	return s.grant
}

// Adapter returns the adapter of a surface.
func (s *Session) Adapter(surface Surface) *engine.Adapter {
	return s.adapters[surface]
}

func (s *Session) owner() *engine.Adapter {
	return s.adapters[s.grant.Surface]
}

// LastError returns the most recent playback failure, if any.
func (s *Session) LastError() error {
	return s.lastErr
}

// Close detaches from the store and releases both resources.
func (s *Session) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	return errors.Join(
		s.adapters[SurfaceMini].Close(),
		s.adapters[SurfaceExpanded].Close(),
	)
}

// Expand gives the grant to the expanded surface.
func (s *Session) Expand() {
	if s.expanded || s.store.Snapshot().IsEmpty() {
		return
	}
	s.expanded = true
	s.moveGrant(SurfaceExpanded)
}

// Collapse returns the grant to the mini surface.
func (s *Session) Collapse() {
	if !s.expanded {
		return
	}
	s.expanded = false
	s.moveGrant(SurfaceMini)
}

// ToggleExpanded flips between the mini and expanded surfaces.
func (s *Session) ToggleExpanded() {
	if s.expanded {
		s.Collapse()
		return
	}
	s.Expand()
}

// Expanded reports whether the expanded surface is open.
func (s *Session) Expanded() bool {
	return s.expanded
}

// TogglePanel opens or closes the playlist panel.
func (s *Session) TogglePanel() {
	if !s.panelOpen && s.store.Snapshot().IsEmpty() {
		return
	}
	s.panelOpen = !s.panelOpen
}

// Transport

func (s *Session) TogglePlay()    { s.store.TogglePlay() }
func (s *Session) Play()          { s.store.Play() }
func (s *Session) Pause()         { s.store.Pause() }
func (s *Session) Next()          { s.store.Advance() }
func (s *Session) Previous()      { s.store.Retreat() }
func (s *Session) ToggleShuffle() { s.store.ToggleShuffle() }
func (s *Session) ToggleLoop()    { s.store.ToggleLoop() }

// Volume returns the store volume.
func (s *Session) Volume() float64 {
	return s.store.Snapshot().Volume
}

// SetVolume is a user volume change. It goes through the audible adapter
// so the resource and the mute flag follow immediately.
func (s *Session) SetVolume(level float64) {
	if s.store.Snapshot().IsEmpty() {
		s.store.SetVolume(level)
		return
	}
	s.owner().SetVolume(level)
}

// AdjustVolume steps the volume by delta, rounded to hundredths.
func (s *Session) AdjustVolume(delta float64) {
	v := math.Round((s.Volume()+delta)*100) / 100
	s.SetVolume(v)
}

// ToggleMute flips mute through the audible adapter.
func (s *Session) ToggleMute() {
	if s.store.Snapshot().IsEmpty() {
		s.store.ToggleMute()
		return
	}
	s.owner().ToggleMute()
}

// Scrub seeks the audible adapter to a normalized position.
func (s *Session) Scrub(pos float64) {
	s.owner().Scrub(pos)
}

// Playlist

func (s *Session) PlayNow(item playlist.Item)                   { s.store.PlayNow(item) }
func (s *Session) SetPlaylist(items []playlist.Item, start int) { s.store.SetPlaylist(items, start) }
func (s *Session) Enqueue(item playlist.Item)                   { s.store.Enqueue(item) }
func (s *Session) JumpTo(index int)                             { s.store.JumpTo(index) }
func (s *Session) Remove(index int)                             { s.store.Dequeue(index) }
func (s *Session) ClearPlaylist()                               { s.store.Clear() }
func (s *Session) ClearHistory()                                { s.store.ClearHistory() }

func (s *Session) onState(st playlist.State) {
	if st.IsEmpty() {
		s.panelOpen = false
		if s.expanded {
			s.expanded = false
			s.grant = s.newGrant(SurfaceMini)
			s.log.Debug().Msg("playlist empty, collapsed")
		}
	}
	s.sync(st, 0)
}

func (s *Session) moveGrant(to Surface) {
	st := s.store.Snapshot()
	from := s.owner().Binding()

	var startAt float64
	if cur, ok := st.Current(); ok && from.ItemID == cur.ID && from.Ready {
		startAt = from.TimeSeconds
	}

	s.grant = s.newGrant(to)
	s.log.Info().
		Str("surface", to.String()).
		Str("token", s.grant.Token.String()).
		Float64("start_at", startAt).
		Msg("grant moved")
	s.sync(st, startAt)
}

// sync applies st to both adapters, silencing the non-owner first.
func (s *Session) sync(st playlist.State, startAt float64) {
	owner := s.grant.Surface
	other := SurfaceMini
	if owner == SurfaceMini {
		other = SurfaceExpanded
	}
	s.adapters[other].Apply(s.targetFor(st, other, 0))
	s.adapters[owner].Apply(s.targetFor(st, owner, startAt))
}

func (s *Session) targetFor(st playlist.State, surface Surface, startAt float64) engine.Target {
	target := engine.Target{
		ShouldPlay: st.IsPlaying,
		Volume:     st.Volume,
		Muted:      st.Muted,
		IsLast:     st.IsLast(),
		Loop:       st.Loop,
		Active:     surface == s.grant.Surface,
		StartAt:    startAt,
	}
	if item, ok := st.Current(); ok {
		target.ItemID = item.ID
		target.URL = item.MediaURL
		target.Kind = item.Kind
	}
	return target
}

func (s *Session) newGrant(surface Surface) Grant {
	return Grant{Surface: surface, Token: uuid.New(), Since: s.now()}
}
