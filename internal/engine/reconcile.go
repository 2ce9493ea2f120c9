package engine

import (
	"fmt"

	"cli_player/internal/playlist"
)

// Target is the desired state of one adapter's resource.
type Target struct {
	ItemID     string
	URL        string
	Kind       playlist.MediaKind
	ShouldPlay bool
	Volume     float64
	Muted      bool
	IsLast     bool
	Loop       bool
	// Active is true only for the adapter holding the session grant.
	Active bool
	// StartAt is the position to seek to right after a load, in seconds.
	StartAt float64
}

// bound reports whether the target asks for a resource at all.
func (t Target) bound() bool {
	return t.Active && t.ItemID != ""
}

// Observed is what the adapter last saw, or last commanded, of its resource.
type Observed struct {
	Ticket      Ticket
	URL         string
	Ready       bool
	Failed      bool
	Playing     bool
	PlayPending bool
	// Resting holds a resource that stopped on its own until the next Apply.
	Resting bool

	Volume        float64
	VolumeApplied bool
	Muted         bool
	MutedApplied  bool

	SeekPending bool
	SeekTarget  float64

	Time     float64
	Duration float64
}

func (o Observed) producing() bool {
	return o.Playing || o.PlayPending
}

// Op is a resource command verb.
type Op int

const (
	OpLoad Op = iota
	OpUnload
	OpPlay
	OpPause
	OpSeek
	OpSetVolume
	OpSetMuted
)

func (o Op) String() string {
	switch o {
	case OpLoad:
		return "load"
	case OpUnload:
		return "unload"
	case OpPlay:
		return "play"
	case OpPause:
		return "pause"
	case OpSeek:
		return "seek"
	case OpSetVolume:
		return "set_volume"
	case OpSetMuted:
		return "set_muted"
	default:
		return "unknown"
	}
}

// Command is a single step toward the desired state.
type Command struct {
	Op      Op
	ItemID  string
	URL     string
	Kind    playlist.MediaKind
	StartAt float64
	Seconds float64
	Volume  float64
	Muted   bool
}

func (c Command) String() string {
	switch c.Op {
	case OpLoad:
		return fmt.Sprintf("load(%s)", c.ItemID)
	case OpSeek:
		return fmt.Sprintf("seek(%.1f)", c.Seconds)
	case OpSetVolume:
		return fmt.Sprintf("set_volume(%.2f)", c.Volume)
	case OpSetMuted:
		return fmt.Sprintf("set_muted(%t)", c.Muted)
	default:
		return c.Op.String()
	}
}

// Reconcile returns the commands that move observed toward desired. It is
// pure: the same inputs always yield the same commands, and once observed
// reflects them a second call yields none.
func Reconcile(desired Target, observed Observed) []Command {
	var cmds []Command

	if !desired.bound() {
		if observed.producing() {
			cmds = append(cmds, Command{Op: OpPause})
		}
		if !observed.Ticket.IsZero() {
			cmds = append(cmds, Command{Op: OpUnload})
		}
		return cmds
	}

	if !observed.VolumeApplied || observed.Volume != desired.Volume {
		cmds = append(cmds, Command{Op: OpSetVolume, Volume: desired.Volume})
	}
	if !observed.MutedApplied || observed.Muted != desired.Muted {
		cmds = append(cmds, Command{Op: OpSetMuted, Muted: desired.Muted})
	}

	if observed.Ticket.ItemID != desired.ItemID || observed.URL != desired.URL {
		if observed.producing() {
			cmds = append(cmds, Command{Op: OpPause})
		}
		return append(cmds, Command{
			Op:      OpLoad,
			ItemID:  desired.ItemID,
			URL:     desired.URL,
			Kind:    desired.Kind,
			StartAt: desired.StartAt,
		})
	}

	if !observed.Ready || observed.Failed {
		return cmds
	}

	if observed.SeekPending {
		cmds = append(cmds, Command{Op: OpSeek, Seconds: observed.SeekTarget})
	}
	switch {
	case desired.ShouldPlay && !observed.producing() && !observed.Resting:
		cmds = append(cmds, Command{Op: OpPlay})
	case !desired.ShouldPlay && observed.producing():
		cmds = append(cmds, Command{Op: OpPause})
	}
	return cmds
}
