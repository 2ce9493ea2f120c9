// Package playlist holds the process-wide playback state: the queue, the
// current position, transport flags and play history. Every mutation goes
// through a named transition and is broadcast to subscribers as a complete
// snapshot.
package playlist

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Store owns the playlist state. All transitions are total: out-of-range
// input is clamped or ignored, never reported as an error.
type Store struct {
	mu    sync.Mutex
	state State
	pick  func(n int) int

	subs    []subscriber
	nextSub int

	pending   []State
	notifying bool
}

type subscriber struct {
	id int
	fn func(State)
}

// Option configures a Store.
type Option func(*Store)

// WithRand sets the random source used for shuffle picks.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) {
		s.pick = r.IntN
	}
}

// WithPreferences seeds the store with previously persisted preferences.
func WithPreferences(p Preferences) Option {
	return func(s *Store) {
		s.state.applyPreferences(p)
	}
}

// NewStore creates an empty, paused store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: State{
			CurrentIndex: NoIndex,
			Volume:       DefaultVolume,
		},
		pick: rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive every committed snapshot, in commit
// order. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SetPlaylist replaces the queue and moves to startIndex (clamped).
func (s *Store) SetPlaylist(items []Item, startIndex int) {
	s.commit(func(st *State) bool {
		st.Items = cloneItems(items)
		st.CurrentIndex = startIndex
		return true
	})
}

// Enqueue appends item without touching position or flags.
func (s *Store) Enqueue(item Item) {
	s.commit(func(st *State) bool {
		st.Items = append(st.Items, item)
		return true
	})
}

// Dequeue removes the entry at index and repairs the current position.
func (s *Store) Dequeue(index int) {
	s.commit(func(st *State) bool {
		if index < 0 || index >= len(st.Items) {
			return false
		}
		st.Items = append(st.Items[:index:index], st.Items[index+1:]...)
		switch {
		case index < st.CurrentIndex:
			st.CurrentIndex--
		case index == st.CurrentIndex:
			st.CurrentIndex = min(st.CurrentIndex, len(st.Items)-1)
		}
		return true
	})
}

// Clear empties the queue and stops playback. History is kept.
func (s *Store) Clear() {
	s.commit(func(st *State) bool {
		st.Items = nil
		st.CurrentIndex = NoIndex
		st.IsPlaying = false
		return true
	})
}

// PlayNow starts item, reusing an existing entry with the same id.
func (s *Store) PlayNow(item Item) {
	s.commit(func(st *State) bool {
		idx := st.IndexOf(item.ID)
		if idx == NoIndex {
			st.Items = append(st.Items, item)
			idx = len(st.Items) - 1
		}
		st.CurrentIndex = idx
		st.IsPlaying = true
		st.pushHistory(st.Items[idx])
		return true
	})
}

// Play sets the playing flag and records the current item.
func (s *Store) Play() {
	s.commit(func(st *State) bool {
		if len(st.Items) == 0 {
			return false
		}
		st.IsPlaying = true
		st.pushHistory(st.Items[st.CurrentIndex])
		return true
	})
}

// Pause clears the playing flag.
func (s *Store) Pause() {
	s.commit(func(st *State) bool {
		if !st.IsPlaying {
			return false
		}
		st.IsPlaying = false
		return true
	})
}

// TogglePlay flips between Play and Pause.
func (s *Store) TogglePlay() {
	s.commit(func(st *State) bool {
		if st.IsPlaying {
			st.IsPlaying = false
			return true
		}
		if len(st.Items) == 0 {
			return false
		}
		st.IsPlaying = true
		st.pushHistory(st.Items[st.CurrentIndex])
		return true
	})
}

// Advance moves to the next entry. At the end it wraps only when loop is
// enabled. In shuffle mode it picks any other entry uniformly.
func (s *Store) Advance() {
	s.commit(func(st *State) bool {
		next, ok := st.neighbour(+1, s.pick)
		if !ok {
			return false
		}
		st.CurrentIndex = next
		return true
	})
}

// Retreat moves to the previous entry, mirroring Advance. In shuffle mode
// this is a fresh random pick, not a walk back through history.
func (s *Store) Retreat() {
	s.commit(func(st *State) bool {
		prev, ok := st.neighbour(-1, s.pick)
		if !ok {
			return false
		}
		st.CurrentIndex = prev
		return true
	})
}

// JumpTo selects index and starts playback. Out-of-range is a no-op.
func (s *Store) JumpTo(index int) {
	s.commit(func(st *State) bool {
		if index < 0 || index >= len(st.Items) {
			return false
		}
		st.CurrentIndex = index
		st.IsPlaying = true
		st.pushHistory(st.Items[index])
		return true
	})
}

// SetVolume clamps level into [0,1]. Zero mutes, anything else unmutes.
func (s *Store) SetVolume(level float64) {
	if math.IsNaN(level) {
		return
	}
	s.commit(func(st *State) bool {
		st.Volume = clampVolume(level)
		st.Muted = st.Volume == 0
		return true
	})
}

// ToggleMute flips the muted flag.
func (s *Store) ToggleMute() {
	s.commit(func(st *State) bool {
		st.Muted = !st.Muted
		return true
	})
}

// ToggleLoop flips the loop flag.
func (s *Store) ToggleLoop() {
	s.commit(func(st *State) bool {
		st.Loop = !st.Loop
		return true
	})
}

// ToggleShuffle flips the shuffle flag.
func (s *Store) ToggleShuffle() {
	s.commit(func(st *State) bool {
		st.Shuffle = !st.Shuffle
		return true
	})
}

// ClearHistory drops the play history.
func (s *Store) ClearHistory() {
	s.commit(func(st *State) bool {
		if len(st.History) == 0 {
			return false
		}
		st.History = nil
		return true
	})
}

// Restore replaces the persisted subset of the state.
func (s *Store) Restore(p Preferences) {
	s.commit(func(st *State) bool {
		st.applyPreferences(p)
		return true
	})
}

// commit applies mutate under the lock and delivers the resulting snapshot.
// Transitions issued by subscribers while a snapshot is being delivered are
// applied immediately; their snapshots queue behind the current one.
func (s *Store) commit(mutate func(*State) bool) {
	s.mu.Lock()
	if !mutate(&s.state) {
		s.mu.Unlock()
		return
	}
	s.state.normalize()
	s.pending = append(s.pending, s.state.clone())
	if s.notifying {
		s.mu.Unlock()
		return
	}

	s.notifying = true
	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscriber, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(snap)
		}

		s.mu.Lock()
	}
	s.notifying = false
	s.mu.Unlock()
}

// neighbour computes the index one step in dir, honouring loop and shuffle.
func (st *State) neighbour(dir int, pick func(int) int) (int, bool) {
	n := len(st.Items)
	if n == 0 {
		return 0, false
	}
	if st.Shuffle {
		if n < 2 {
			return 0, false
		}
		// one draw over the n-1 other slots
		r := pick(n - 1)
		if r >= st.CurrentIndex {
			r++
		}
		return r, true
	}

	next := st.CurrentIndex + dir
	if next >= 0 && next < n {
		return next, true
	}
	if !st.Loop {
		return 0, false
	}
	if next < 0 {
		return n - 1, true
	}
	return 0, true
}

func (st *State) pushHistory(item Item) {
	h := make([]Item, 0, min(len(st.History)+1, HistoryCapacity))
	h = append(h, item)
	for _, prev := range st.History {
		if len(h) == HistoryCapacity {
			break
		}
		if prev.ID != item.ID {
			h = append(h, prev)
		}
	}
	st.History = h
}

func (st *State) applyPreferences(p Preferences) {
	st.Volume = DefaultVolume
	if !math.IsNaN(p.Volume) {
		st.Volume = clampVolume(p.Volume)
	}
	st.Muted = p.Muted
	st.Loop = p.Loop
	st.Shuffle = p.Shuffle
	st.History = nil
	// re-push oldest first so dedupe and capacity hold for foreign input
	for i := len(p.History) - 1; i >= 0; i-- {
		st.pushHistory(p.History[i])
	}
}
