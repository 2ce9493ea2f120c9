package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingURL is reported when an item has no media URL to load.
	ErrMissingURL = errors.New("media url missing")
	// ErrPlaybackRejected is the default cause for a refused play request.
	ErrPlaybackRejected = errors.New("playback rejected")
)

// FailureKind classifies item-scoped playback failures.
type FailureKind int

const (
	// FailureLoad means the resource could not resolve the media.
	FailureLoad FailureKind = iota
	// FailurePlayback means the resource refused or stopped producing output.
	FailurePlayback
)

// String returns the failure name.
func (k FailureKind) String() string {
	switch k {
	case FailureLoad:
		return "load"
	case FailurePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// PlaybackError is a non-fatal failure tagged with the item it belongs to.
type PlaybackError struct {
	ItemID string
	Kind   FailureKind
	Err    error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s failure for %s: %v", e.Kind, e.ItemID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
