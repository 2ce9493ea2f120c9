package session

import (
	"cli_player/internal/engine"
	"cli_player/internal/playlist"
)

// Entry is one row of the playlist panel.
type Entry struct {
	Index   int
	Item    playlist.Item
	Current bool
}

// View is everything a surface needs to draw. The zero View, with Empty
// set, means nothing is drawn at all.
type View struct {
	Empty bool

	Item     playlist.Item
	Index    int
	Count    int
	Surface  Surface
	Expanded bool

	IsPlaying bool
	Volume    float64
	Muted     bool
	Loop      bool
	Shuffle   bool

	Phase       engine.Phase
	Ready       bool
	Elapsed     float64
	Duration    float64
	PanelOpen   bool
	Entries     []Entry
	LastError   error
	HistorySize int
}

// Progress is elapsed over duration in [0,1].
func (v View) Progress() float64 {
	if v.Duration <= 0 {
		return 0
	}
	return min(max(v.Elapsed/v.Duration, 0), 1)
}

// View describes the current surface. It is empty whenever the playlist
// is empty.
func (s *Session) View() View {
	st := s.store.Snapshot()
	item, ok := st.Current()
	if !ok {
		return View{Empty: true}
	}

	owner := s.owner()
	b := owner.Binding()
	v := View{
		Item:        item,
		Index:       st.CurrentIndex,
		Count:       len(st.Items),
		Surface:     s.grant.Surface,
		Expanded:    s.expanded,
		IsPlaying:   st.IsPlaying,
		Volume:      st.Volume,
		Muted:       st.Muted,
		Loop:        st.Loop,
		Shuffle:     st.Shuffle,
		Phase:       owner.Phase(),
		PanelOpen:   s.panelOpen,
		LastError:   s.lastErr,
		HistorySize: len(st.History),
	}
	if b.ItemID == item.ID {
		v.Ready = b.Ready
		v.Elapsed = b.TimeSeconds
		v.Duration = b.DurationSeconds
	}
	if v.Duration == 0 {
		v.Duration = item.DurationHint
	}
	if s.panelOpen {
		v.Entries = make([]Entry, len(st.Items))
		for i, it := range st.Items {
			v.Entries[i] = Entry{Index: i, Item: it, Current: i == st.CurrentIndex}
		}
	}
	return v
}
