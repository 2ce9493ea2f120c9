package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"cli_player/internal/engine"
	"cli_player/internal/playlist"
)

// Renderer is one connection to a renderer daemon shared by every surface.
// Commands from all of its resources are sent in call order from a single
// worker goroutine. Events arrive on the websocket reader goroutine and are
// routed to the resource whose owner they name.
type Renderer struct {
	client  *Client
	events  *EventHandler
	dialErr error
	log     zerolog.Logger

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	resources map[string]*Resource
}

// NewRenderer connects to the renderer at baseURL. A failed event stream
// connection is not fatal: every later Load reports it as a load error.
func NewRenderer(baseURL string, log zerolog.Logger) *Renderer {
	r := &Renderer{
		client:    NewClient(baseURL),
		log:       log.With().Str("component", "renderer").Logger(),
		cmds:      make(chan func(), 64),
		done:      make(chan struct{}),
		resources: map[string]*Resource{},
	}

	h, err := NewEventHandler(EventsURL(baseURL))
	if err != nil {
		r.dialErr = err
		r.log.Warn().Err(err).Msg("renderer events unavailable")
	} else {
		r.events = h
		h.Start()
		go r.readEvents()
	}

	go r.work()
	return r
}

// Factory returns a factory of resources tagged with owner.
func (r *Renderer) Factory(owner string) engine.ResourceFactory {
	return func(sink engine.Sink) engine.Resource {
		return r.Attach(owner, sink)
	}
}

// Attach registers sink for events naming owner and returns the resource
// that sends commands on its behalf. A later Attach for the same owner
// replaces the earlier resource.
func (r *Renderer) Attach(owner string, sink engine.Sink) *Resource {
	res := &Resource{
		owner:    owner,
		renderer: r,
		sink:     sink,
		log:      r.log.With().Str("owner", owner).Logger(),
	}
	r.mu.Lock()
	r.resources[owner] = res
	r.mu.Unlock()
	return res
}

// Close stops the worker and the event stream.
func (r *Renderer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if r.events != nil {
			err = r.events.Close()
		}
	})
	return err
}

func (r *Renderer) work() {
	for {
		select {
		case f := <-r.cmds:
			f()
		case <-r.done:
			return
		}
	}
}

func (r *Renderer) enqueue(f func()) {
	select {
	case r.cmds <- f:
	case <-r.done:
	}
}

func (r *Renderer) readEvents() {
	for ev := range r.events.Ch {
		owner, e, ok := r.translate(ev)
		if !ok {
			continue
		}
		r.mu.Lock()
		res := r.resources[owner]
		r.mu.Unlock()
		if res != nil {
			res.sink(e)
		}
	}
	r.log.Debug().Msg("renderer event stream closed")
}

func (r *Renderer) detach(res *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resources[res.owner] == res {
		delete(r.resources, res.owner)
	}
}

func (r *Renderer) translate(ev Event) (string, engine.Event, bool) {
	var d EventData
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		r.log.Debug().Err(err).Str("type", ev.Type).Msg("undecodable renderer event")
		return "", engine.Event{}, false
	}

	out := engine.Event{
		Ticket:   engine.Ticket{ItemID: d.ItemID, Seq: d.Seq},
		Duration: float64(d.Duration) / 1000,
		Position: float64(d.Position) / 1000,
	}
	switch ev.Type {
	case TypeMetadata:
		out.Kind = engine.EventMetadata
	case TypeTimeUpdate, TypeSeek:
		out.Kind = engine.EventTimeUpdate
	case TypePlaying:
		out.Kind = engine.EventPlaying
	case TypePaused:
		out.Kind = engine.EventPaused
	case TypePlayRejected:
		out.Kind = engine.EventPlayRejected
		out.Err = engine.ErrPlaybackRejected
		if d.Error != "" {
			out.Err = fmt.Errorf("%w: %s", engine.ErrPlaybackRejected, d.Error)
		}
	case TypeEnded:
		out.Kind = engine.EventEnded
	case TypeError:
		out.Kind = engine.EventError
		out.Err = errors.New(d.Error)
	default:
		return "", engine.Event{}, false
	}
	return d.Owner, out, true
}

// Resource drives one owner's share of a Renderer as an engine.Resource.
// Every command carries the owner and the ticket of its latest load, so
// the renderer can tell a departing surface from the one taking over.
// Its methods are called from a single goroutine.
type Resource struct {
	owner    string
	renderer *Renderer
	sink     engine.Sink
	log      zerolog.Logger

	loaded    engine.Ticket
	closeOnce sync.Once
}

func (res *Resource) ref() Ref {
	return Ref{Owner: res.owner, ItemID: res.loaded.ItemID, Seq: res.loaded.Seq}
}

func (res *Resource) Load(t engine.Ticket, url string, kind playlist.MediaKind) {
	res.loaded = t
	req := LoadRequest{Ref: res.ref(), URL: url, Kind: string(kind)}
	res.renderer.enqueue(func() {
		if err := res.renderer.dialErr; err != nil {
			res.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: err})
			return
		}
		if err := res.renderer.client.Load(req); err != nil {
			res.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: err})
		}
	})
}

func (res *Resource) Play(t engine.Ticket) {
	ref := Ref{Owner: res.owner, ItemID: t.ItemID, Seq: t.Seq}
	res.renderer.enqueue(func() {
		if err := res.renderer.client.Play(ref); err != nil {
			res.sink(engine.Event{
				Ticket: t,
				Kind:   engine.EventPlayRejected,
				Err:    fmt.Errorf("%w: %v", engine.ErrPlaybackRejected, err),
			})
		}
	})
}

func (res *Resource) Pause() {
	ref := res.ref()
	res.renderer.enqueue(func() { res.warn("pause", res.renderer.client.Pause(ref)) })
}

func (res *Resource) Seek(seconds float64) {
	ref, ms := res.ref(), int(math.Round(seconds*1000))
	res.renderer.enqueue(func() { res.warn("seek", res.renderer.client.Seek(ref, ms)) })
}

func (res *Resource) SetVolume(level float64) {
	ref, vol := res.ref(), int(math.Round(level*100))
	res.renderer.enqueue(func() { res.warn("volume", res.renderer.client.SetVolume(ref, vol)) })
}

func (res *Resource) SetMuted(muted bool) {
	ref := res.ref()
	res.renderer.enqueue(func() { res.warn("mute", res.renderer.client.SetMuted(ref, muted)) })
}

func (res *Resource) Unload() {
	ref := res.ref()
	res.loaded = engine.Ticket{}
	res.renderer.enqueue(func() { res.warn("unload", res.renderer.client.Unload(ref)) })
}

// Close stops routing events to this resource. The shared connection stays
// open until the Renderer is closed.
func (res *Resource) Close() error {
	res.closeOnce.Do(func() { res.renderer.detach(res) })
	return nil
}

func (res *Resource) warn(op string, err error) {
	if err != nil {
		res.log.Warn().Err(err).Str("op", op).Msg("renderer command failed")
	}
}
