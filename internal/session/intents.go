package session

import (
	"cli_player/internal/engine"
)

// surfaceIntents turns one adapter's reports into store transitions. Reports
// from a surface that does not hold the grant, or about an item that is no
// longer current, are ignored.
type surfaceIntents struct {
	s       *Session
	surface Surface
}

func (i *surfaceIntents) authoritative() bool {
	return i.s.grant.Surface == i.surface
}

func (i *surfaceIntents) current(itemID string) bool {
	cur, ok := i.s.store.Snapshot().Current()
	return ok && cur.ID == itemID
}

func (i *surfaceIntents) Playing(itemID string) {
	if !i.authoritative() || !i.current(itemID) {
		return
	}
	if !i.s.store.Snapshot().IsPlaying {
		i.s.store.Play()
	}
}

func (i *surfaceIntents) Paused(itemID string) {
	if !i.authoritative() || !i.current(itemID) {
		return
	}
	i.s.store.Pause()
}

func (i *surfaceIntents) Navigate(itemID string, nav engine.Navigation) {
	if !i.authoritative() || !i.current(itemID) {
		return
	}
	st := i.s.store.Snapshot()
	switch nav {
	case engine.NavFirst:
		i.s.store.JumpTo(0)
	case engine.NavNext:
		next := st.IndexOf(itemID) + 1
		if next >= len(st.Items) {
			i.s.store.Pause()
			return
		}
		i.s.store.JumpTo(next)
	}
}

func (i *surfaceIntents) VolumeChanged(level float64) {
	if !i.authoritative() {
		return
	}
	i.s.store.SetVolume(level)
}

func (i *surfaceIntents) MuteChanged(muted bool) {
	if !i.authoritative() {
		return
	}
	if i.s.store.Snapshot().Muted != muted {
		i.s.store.ToggleMute()
	}
}

func (i *surfaceIntents) Failed(err *engine.PlaybackError) {
	if !i.authoritative() {
		return
	}
	i.s.lastErr = err
	i.s.log.Error().
		Err(err.Err).
		Str("item", err.ItemID).
		Str("kind", err.Kind.String()).
		Str("surface", i.surface.String()).
		Msg("playback failed")
	if i.s.onError != nil {
		i.s.onError(err)
	}
}
