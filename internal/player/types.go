package player

import "encoding/json"

// Status is the renderer state returned by GET /status.
type Status struct {
	Owner    string `json:"owner"`
	ItemID   string `json:"item_id"`
	Seq      uint64 `json:"seq"`
	Loaded   bool   `json:"loaded"`
	Paused   bool   `json:"paused"`
	Volume   int    `json:"volume"` // 0-100
	Muted    bool   `json:"muted"`
	Duration int    `json:"duration"` // ms
	Position int    `json:"position"` // ms
}

// Ref names the load a command is meant for. Every command body carries
// one; the renderer drops commands whose ref is not the owner's current
// load. Volume and mute sent before any load carry only the owner.
type Ref struct {
	Owner  string `json:"owner"`
	ItemID string `json:"item_id"`
	Seq    uint64 `json:"seq"`
}

// LoadRequest is the body of POST /player/load.
type LoadRequest struct {
	Ref
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Event is a message sent by the renderer on /events.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventData is the payload common to every renderer event. Owner, ItemID
// and Seq echo the load the event belongs to.
type EventData struct {
	Owner    string `json:"owner"`
	ItemID   string `json:"item_id"`
	Seq      uint64 `json:"seq"`
	Duration int    `json:"duration,omitempty"` // ms
	Position int    `json:"position,omitempty"` // ms
	Error    string `json:"error,omitempty"`
}

// Renderer event types.
const (
	TypeMetadata     = "metadata"
	TypeTimeUpdate   = "timeupdate"
	TypeSeek         = "seek"
	TypePlaying      = "playing"
	TypePaused       = "paused"
	TypePlayRejected = "play_rejected"
	TypeEnded        = "ended"
	TypeError        = "error"
)
