package playlist

// MediaKind tells which rendering surface an item needs.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// NoIndex marks the absence of a current item.
const NoIndex = -1

// HistoryCapacity bounds the play history.
const HistoryCapacity = 50

// Default values
const (
	DefaultVolume = 0.8
)

// Item is a single playable entry. Items are values and are never mutated
// once placed in a playlist.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	MediaURL      string    `json:"url"`
	Kind          MediaKind `json:"type"`
	DurationHint  float64   `json:"duration,omitempty"` // seconds
	CoverImageURL string    `json:"coverImg,omitempty"`
	Author        string    `json:"author,omitempty"`
}

// IsVideo reports whether the item needs a picture surface.
func (i Item) IsVideo() bool {
	return i.Kind == KindVideo
}

// State is a snapshot of the playback session.
type State struct {
	Items        []Item
	CurrentIndex int
	IsPlaying    bool
	Volume       float64
	Muted        bool
	Loop         bool
	Shuffle      bool
	History      []Item
}

// Preferences is the subset of State that survives process restarts.
type Preferences struct {
	Volume  float64
	Muted   bool
	Loop    bool
	Shuffle bool
	History []Item
}

// Current returns the item at CurrentIndex.
func (s State) Current() (Item, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.CurrentIndex], true
}

// IsEmpty reports whether the queue has no items.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// IsLast reports whether the current item is the final queue entry.
func (s State) IsLast() bool {
	return len(s.Items) > 0 && s.CurrentIndex == len(s.Items)-1
}

// IndexOf returns the position of the item with the given id, or NoIndex.
func (s State) IndexOf(id string) int {
	for i, item := range s.Items {
		if item.ID == id {
			return i
		}
	}
	return NoIndex
}

// Preferences extracts the persisted subset.
func (s State) Preferences() Preferences {
	return Preferences{
		Volume:  s.Volume,
		Muted:   s.Muted,
		Loop:    s.Loop,
		Shuffle: s.Shuffle,
		History: cloneItems(s.History),
	}
}

// Equal compares two preference sets, history by id and order.
func (p Preferences) Equal(o Preferences) bool {
	if p.Volume != o.Volume || p.Muted != o.Muted || p.Loop != o.Loop || p.Shuffle != o.Shuffle {
		return false
	}
	if len(p.History) != len(o.History) {
		return false
	}
	for i := range p.History {
		if p.History[i] != o.History[i] {
			return false
		}
	}
	return true
}

func (s State) clone() State {
	c := s
	c.Items = cloneItems(s.Items)
	c.History = cloneItems(s.History)
	return c
}

// normalize enforces the index and playing invariants.
func (s *State) normalize() {
	switch {
	case len(s.Items) == 0:
		s.CurrentIndex = NoIndex
		s.IsPlaying = false
	case s.CurrentIndex < 0:
		s.CurrentIndex = 0
	case s.CurrentIndex >= len(s.Items):
		s.CurrentIndex = len(s.Items) - 1
	}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
