// Package keyboard maps raw terminal key sequences to transport controls.
// A Registry guarantees that exactly one Controller handles each key no
// matter how many are mounted.
package keyboard

import (
	"math"
	"sync"
)

// Key is a recognised global binding.
type Key int

const (
	KeyNone Key = iota
	KeyTogglePlay
	KeyPrevious
	KeyNext
	KeyVolumeUp
	KeyVolumeDown
	KeyMute
)

func (k Key) String() string {
	switch k {
	case KeyTogglePlay:
		return "toggle_play"
	case KeyPrevious:
		return "previous"
	case KeyNext:
		return "next"
	case KeyVolumeUp:
		return "volume_up"
	case KeyVolumeDown:
		return "volume_down"
	case KeyMute:
		return "mute"
	default:
		return "none"
	}
}

// VolumeStep is the change applied by one up or down key.
const VolumeStep = 0.1

// Parse decodes a raw key read. Arrow keys arrive as ESC [ A..D; h/j/k/l
// are accepted as aliases.
func Parse(raw []byte) Key {
	switch {
	case len(raw) == 1 && raw[0] == ' ':
		return KeyTogglePlay

	case len(raw) == 1 && (raw[0] == 'm' || raw[0] == 'M'):
		return KeyMute

	case len(raw) == 1 && raw[0] == 'h',
		len(raw) == 3 && raw[0] == 0x1b && raw[1] == '[' && raw[2] == 'D': // ←
		return KeyPrevious

	case len(raw) == 1 && raw[0] == 'l',
		len(raw) == 3 && raw[0] == 0x1b && raw[1] == '[' && raw[2] == 'C': // →
		return KeyNext

	case len(raw) == 1 && raw[0] == 'k',
		len(raw) == 3 && raw[0] == 0x1b && raw[1] == '[' && raw[2] == 'A': // ↑
		return KeyVolumeUp

	case len(raw) == 1 && raw[0] == 'j',
		len(raw) == 3 && raw[0] == 0x1b && raw[1] == '[' && raw[2] == 'B': // ↓
		return KeyVolumeDown
	}
	return KeyNone
}

// Transport is what a key can drive.
type Transport interface {
	TogglePlay()
	Next()
	Previous()
	Volume() float64
	SetVolume(level float64)
	ToggleMute()
}

// FocusChecker reports whether a text input currently owns the keyboard.
type FocusChecker interface {
	TextInputFocused() bool
}

// FocusFunc adapts a func to FocusChecker.
type FocusFunc func() bool

func (f FocusFunc) TextInputFocused() bool { return f() }

// Controller applies global bindings to one Transport.
type Controller struct {
	transport Transport
	focus     FocusChecker
}

// NewController binds t. focus may be nil when there is no text input.
func NewController(t Transport, focus FocusChecker) *Controller {
	return &Controller{transport: t, focus: focus}
}

// Handle applies raw and reports whether it was consumed.
func (c *Controller) Handle(raw []byte) bool {
	if c.focus != nil && c.focus.TextInputFocused() {
		return false
	}

	switch Parse(raw) {
	case KeyTogglePlay:
		c.transport.TogglePlay()
	case KeyPrevious:
		c.transport.Previous()
	case KeyNext:
		c.transport.Next()
	case KeyVolumeUp:
		c.step(VolumeStep)
	case KeyVolumeDown:
		c.step(-VolumeStep)
	case KeyMute:
		c.transport.ToggleMute()
	default:
		return false
	}
	return true
}

func (c *Controller) step(delta float64) {
	v := math.Round((c.transport.Volume()+delta)*100) / 100
	c.transport.SetVolume(min(max(v, 0), 1))
}

// Registry holds every mounted controller and routes keys to the oldest.
type Registry struct {
	mu      sync.Mutex
	mounted []*mount
}

type mount struct {
	c *Controller
}

// Mount registers c. The returned func unmounts it and is safe to call
// more than once.
func (r *Registry) Mount(c *Controller) (unmount func()) {
	m := &mount{c: c}

	r.mu.Lock()
	r.mounted = append(r.mounted, m)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, other := range r.mounted {
				if other == m {
					r.mounted = append(r.mounted[:i:i], r.mounted[i+1:]...)
					return
				}
			}
		})
	}
}

// Live returns the controller that currently receives keys, or nil.
func (r *Registry) Live() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mounted) == 0 {
		return nil
	}
	return r.mounted[0].c
}

// Dispatch hands raw to the live controller only.
func (r *Registry) Dispatch(raw []byte) bool {
	c := r.Live()
	if c == nil {
		return false
	}
	return c.Handle(raw)
}
