// Package prefs persists the user's playback preferences (volume, mute,
// loop, shuffle and play history) across restarts. Queue contents and
// the current position are never persisted.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cli_player/internal/playlist"
)

// Namespace is the fixed key every backend stores the record under.
const Namespace = "player-state"

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("corrupt preferences record")

// Record is the persisted shape.
type Record struct {
	Volume      *float64        `json:"volume,omitempty"`
	Muted       bool            `json:"muted"`
	Loop        bool            `json:"loop"`
	Shuffle     bool            `json:"shuffle"`
	PlayHistory []playlist.Item `json:"playHistory"`
}

// FromPreferences builds a record from the store subset.
func FromPreferences(p playlist.Preferences) Record {
	v := p.Volume
	return Record{
		Volume:      &v,
		Muted:       p.Muted,
		Loop:        p.Loop,
		Shuffle:     p.Shuffle,
		PlayHistory: p.History,
	}
}

// Preferences converts the record back. A missing volume becomes NaN so
// the store falls back to its default.
func (r Record) Preferences() playlist.Preferences {
	vol := math.NaN()
	if r.Volume != nil {
		vol = *r.Volume
	}
	return playlist.Preferences{
		Volume:  vol,
		Muted:   r.Muted,
		Loop:    r.Loop,
		Shuffle: r.Shuffle,
		History: r.PlayHistory,
	}
}

func encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}

// Backend is durable storage for one record.
type Backend interface {
	// Load returns the stored record. ok is false when nothing is stored.
	Load(ctx context.Context) (r Record, ok bool, err error)
	Save(ctx context.Context, r Record) error
}

// Restore loads the stored record into store. Failures are logged and the
// store keeps its defaults.
func Restore(ctx context.Context, b Backend, store *playlist.Store, log zerolog.Logger) {
	r, ok, err := b.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("preferences not restored")
		return
	}
	if !ok {
		log.Debug().Msg("no stored preferences")
		return
	}
	store.Restore(r.Preferences())
	log.Info().Int("history", len(r.PlayHistory)).Msg("preferences restored")
}

// Persister writes the preference subset back whenever it changes.
type Persister struct {
	backend Backend
	log     zerolog.Logger
	timeout time.Duration

	mu   sync.Mutex
	last playlist.Preferences
	seen bool
}

// NewPersister builds a persister over b.
func NewPersister(b Backend, log zerolog.Logger) *Persister {
	return &Persister{
		backend: b,
		log:     log.With().Str("component", "prefs").Logger(),
		timeout: 2 * time.Second,
	}
}

// Attach subscribes to store. The current preferences are taken as already
// persisted.
func (p *Persister) Attach(store *playlist.Store) (detach func()) {
	p.mu.Lock()
	p.last = store.Snapshot().Preferences()
	p.seen = true
	p.mu.Unlock()
	return store.Subscribe(p.Observe)
}

// Observe saves st's preferences if they differ from the last saved ones.
// A failed save is logged and retried on the next change.
func (p *Persister) Observe(st playlist.State) {
	prefs := st.Preferences()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen && prefs.Equal(p.last) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.backend.Save(ctx, FromPreferences(prefs)); err != nil {
		p.log.Error().Err(err).Msg("persist preferences")
		p.seen = false
		return
	}
	p.last = prefs
	p.seen = true
}
