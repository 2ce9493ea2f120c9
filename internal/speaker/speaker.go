// Package speaker renders audio items on the local sound card.
package speaker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"cli_player/internal/engine"
	"cli_player/internal/playlist"
)

var (
	ErrUnsupportedKind   = errors.New("local output plays audio only")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Device is the audio sink streamers are mixed into.
type Device interface {
	Init() error
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

type soundCard struct {
	rate beep.SampleRate
	once sync.Once
	err  error
}

// SoundCard returns the system speaker at 48kHz. It is initialised on
// first use.
func SoundCard() Device {
	return &soundCard{rate: beep.SampleRate(48000)}
}

func (c *soundCard) Init() error {
	c.once.Do(func() {
		c.err = speaker.Init(c.rate, c.rate.N(100*time.Millisecond))
	})
	return c.err
}

func (c *soundCard) SampleRate() beep.SampleRate { return c.rate }
func (c *soundCard) Play(s beep.Streamer)        { speaker.Play(s) }
func (c *soundCard) Lock()                       { speaker.Lock() }
func (c *soundCard) Unlock()                     { speaker.Unlock() }

// Option configures a Resource.
type Option func(*Resource)

// WithTick sets how often position updates are reported while playing.
func WithTick(d time.Duration) Option {
	return func(r *Resource) { r.tick = d }
}

// Resource plays one item at a time through a Device. All state is owned
// by a worker goroutine; the device goroutine only touches the streamer
// chain under the device lock.
type Resource struct {
	dev  Device
	sink engine.Sink
	log  zerolog.Logger
	http *resty.Client
	tick time.Duration

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once

	ticket   engine.Ticket
	stream   beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	attached bool
	playing  bool
	level    float64
	muted    bool
}

// Factory returns a factory of resources sharing dev.
func Factory(dev Device, log zerolog.Logger, opts ...Option) engine.ResourceFactory {
	return func(sink engine.Sink) engine.Resource {
		return New(dev, sink, log, opts...)
	}
}

func New(dev Device, sink engine.Sink, log zerolog.Logger, opts ...Option) *Resource {
	r := &Resource{
		dev:   dev,
		sink:  sink,
		log:   log.With().Str("component", "speaker").Logger(),
		http:  resty.New().SetTimeout(60 * time.Second),
		tick:  250 * time.Millisecond,
		cmds:  make(chan func(), 64),
		done:  make(chan struct{}),
		level: 1,
	}
	for _, o := range opts {
		o(r)
	}
	go r.work()
	go r.ticker()
	return r
}

func (r *Resource) work() {
	for {
		select {
		case f := <-r.cmds:
			f()
		case <-r.done:
			r.release()
			return
		}
	}
}

func (r *Resource) enqueue(f func()) {
	select {
	case r.cmds <- f:
	case <-r.done:
	}
}

func (r *Resource) ticker() {
	t := time.NewTicker(r.tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			select {
			case r.cmds <- r.report:
			default:
			}
		case <-r.done:
			return
		}
	}
}

func (r *Resource) report() {
	if !r.playing || r.stream == nil {
		return
	}
	r.sink(engine.Event{Ticket: r.ticket, Kind: engine.EventTimeUpdate, Position: r.position()})
}

func (r *Resource) position() float64 {
	r.dev.Lock()
	n := r.stream.Position()
	r.dev.Unlock()
	return r.format.SampleRate.D(n).Seconds()
}

func (r *Resource) Load(t engine.Ticket, src string, kind playlist.MediaKind) {
	r.enqueue(func() {
		r.release()
		r.ticket = t

		if kind == playlist.KindVideo {
			r.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: ErrUnsupportedKind})
			return
		}
		if err := r.dev.Init(); err != nil {
			r.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: fmt.Errorf("initialising speaker: %w", err)})
			return
		}
		stream, format, err := r.open(src)
		if err != nil {
			r.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: err})
			return
		}

		r.stream = stream
		r.format = format
		var s beep.Streamer = stream
		if rate := r.dev.SampleRate(); format.SampleRate != rate {
			s = beep.Resample(4, format.SampleRate, rate, stream)
		}
		r.vol = &effects.Volume{Streamer: s, Base: 2, Volume: gain(r.level), Silent: r.silent()}
		r.ctrl = &beep.Ctrl{Streamer: r.vol, Paused: true}
		r.attach()

		r.log.Debug().Str("ticket", t.String()).Str("url", src).Msg("loaded")
		r.sink(engine.Event{
			Ticket:   t,
			Kind:     engine.EventMetadata,
			Duration: format.SampleRate.D(stream.Len()).Seconds(),
		})
	})
}

func (r *Resource) attach() {
	t := r.ticket
	r.attached = true
	r.dev.Play(beep.Seq(r.ctrl, beep.Callback(func() {
		go r.enqueue(func() { r.finish(t) })
	})))
}

func (r *Resource) finish(t engine.Ticket) {
	if t != r.ticket || r.stream == nil {
		return
	}
	r.attached = false
	r.playing = false
	if err := r.stream.Err(); err != nil {
		r.sink(engine.Event{Ticket: t, Kind: engine.EventError, Err: err})
		return
	}
	r.sink(engine.Event{Ticket: t, Kind: engine.EventEnded})
}

func (r *Resource) Play(t engine.Ticket) {
	r.enqueue(func() {
		if t != r.ticket || r.ctrl == nil {
			r.sink(engine.Event{
				Ticket: t,
				Kind:   engine.EventPlayRejected,
				Err:    fmt.Errorf("%w: %s is not loaded", engine.ErrPlaybackRejected, t),
			})
			return
		}
		r.dev.Lock()
		r.ctrl.Paused = false
		r.dev.Unlock()
		if !r.attached {
			r.attach()
		}
		r.playing = true
		r.sink(engine.Event{Ticket: t, Kind: engine.EventPlaying})
	})
}

func (r *Resource) Pause() {
	r.enqueue(func() {
		if r.ctrl == nil {
			return
		}
		r.dev.Lock()
		r.ctrl.Paused = true
		r.dev.Unlock()
		if r.playing {
			r.playing = false
			r.sink(engine.Event{Ticket: r.ticket, Kind: engine.EventPaused})
		}
	})
}

func (r *Resource) Seek(seconds float64) {
	r.enqueue(func() {
		if r.stream == nil {
			return
		}
		n := r.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
		n = min(max(n, 0), max(r.stream.Len()-1, 0))

		r.dev.Lock()
		err := r.stream.Seek(n)
		r.dev.Unlock()
		if err != nil {
			r.log.Warn().Err(err).Float64("seconds", seconds).Msg("seek failed")
			return
		}
		r.sink(engine.Event{Ticket: r.ticket, Kind: engine.EventTimeUpdate, Position: r.format.SampleRate.D(n).Seconds()})
	})
}

func (r *Resource) SetVolume(level float64) {
	r.enqueue(func() {
		r.level = level
		r.apply()
	})
}

func (r *Resource) SetMuted(muted bool) {
	r.enqueue(func() {
		r.muted = muted
		r.apply()
	})
}

func (r *Resource) apply() {
	if r.vol == nil {
		return
	}
	r.dev.Lock()
	r.vol.Volume = gain(r.level)
	r.vol.Silent = r.silent()
	r.dev.Unlock()
}

func (r *Resource) silent() bool { return r.muted || r.level <= 0 }

func (r *Resource) Unload() {
	r.enqueue(r.release)
}

// release detaches the current stream. The device drops the emptied chain
// and the pending callback is ignored as stale.
func (r *Resource) release() {
	if r.ctrl != nil {
		r.dev.Lock()
		r.ctrl.Streamer = nil
		r.dev.Unlock()
	}
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.log.Debug().Err(err).Msg("closing stream")
		}
	}
	r.ticket = engine.Ticket{}
	r.stream = nil
	r.ctrl = nil
	r.vol = nil
	r.attached = false
	r.playing = false
}

func (r *Resource) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// gain maps a linear level in [0,1] onto a base-2 effects.Volume.
func gain(level float64) float64 {
	if level <= 0 {
		return 0
	}
	return math.Log2(level)
}

func (r *Resource) open(src string) (beep.StreamSeekCloser, beep.Format, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("parsing media url: %w", err)
	}

	var rc io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		resp, err := r.http.R().Get(src)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("fetching %s: %w", src, err)
		}
		if resp.IsError() {
			return nil, beep.Format{}, fmt.Errorf("fetching %s: %s", src, resp.Status())
		}
		rc = memFile{bytes.NewReader(resp.Body())}
	case "", "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, beep.Format{}, err
		}
		rc = f
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedFormat, u.Scheme)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".wav":
		stream, format, err = wav.Decode(rc)
	case ".mp3", "":
		stream, format, err = mp3.Decode(rc)
	default:
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Ext(u.Path))
	}
	if err != nil {
		rc.Close()
		return nil, beep.Format{}, fmt.Errorf("decoding %s: %w", src, err)
	}
	return stream, format, nil
}

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }
