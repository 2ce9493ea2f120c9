// Package engine binds abstract playback intent to a concrete, asynchronous
// media resource. One Adapter exists per rendering surface; it reconciles
// the resource toward a desired Target and translates the resource's lifecycle
// events into upward intents.
package engine

import (
	"fmt"

	"cli_player/internal/playlist"
)

// Ticket identifies one load of one item on one adapter. Every event a
// resource emits carries the ticket it was loaded with; events whose ticket
// no longer matches the adapter's binding are stale.
type Ticket struct {
	ItemID string
	Seq    uint64
}

// IsZero reports whether the ticket is unset.
func (t Ticket) IsZero() bool {
	return t == Ticket{}
}

func (t Ticket) String() string {
	return fmt.Sprintf("%s#%d", t.ItemID, t.Seq)
}

// EventKind enumerates resource lifecycle notifications.
type EventKind int

const (
	// EventMetadata means duration is known and the resource can play.
	EventMetadata EventKind = iota
	// EventTimeUpdate reports playback progress.
	EventTimeUpdate
	// EventPlaying means the resource started producing output.
	EventPlaying
	// EventPaused means the resource stopped producing output.
	EventPaused
	// EventPlayRejected means a play request was refused.
	EventPlayRejected
	// EventEnded means the media reached its end.
	EventEnded
	// EventError means the resource failed to load or decode.
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventMetadata:
		return "metadata"
	case EventTimeUpdate:
		return "timeupdate"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventPlayRejected:
		return "play_rejected"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification raised by a Resource.
type Event struct {
	Ticket   Ticket
	Kind     EventKind
	Duration float64 // seconds, EventMetadata
	Position float64 // seconds, EventTimeUpdate
	Err      error   // EventPlayRejected, EventError
}

// Sink receives resource events. Resources may call it from any goroutine.
type Sink func(Event)

// Resource is a concrete media element. Load and Play are asynchronous:
// their outcome arrives later through the Sink. Pause, Seek, SetVolume,
// SetMuted and Unload must not fail from the caller's point of view.
type Resource interface {
	Load(t Ticket, url string, kind playlist.MediaKind)
	Play(t Ticket)
	Pause()
	Seek(seconds float64)
	SetVolume(level float64)
	SetMuted(muted bool)
	Unload()
	Close() error
}

// ResourceFactory builds a Resource that reports to sink.
type ResourceFactory func(sink Sink) Resource
