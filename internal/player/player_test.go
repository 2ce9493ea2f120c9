package player

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cli_player/internal/engine"
	"cli_player/internal/playlist"
)

type request struct {
	path string
	body map[string]any
}

// fakeRenderer serves the REST API and pushes events over /events.
type fakeRenderer struct {
	srv      *httptest.Server
	requests chan request
	conns    chan *websocket.Conn

	mu     sync.Mutex
	status map[string]int
}

func newFakeRenderer(t *testing.T) *fakeRenderer {
	t.Helper()
	f := &fakeRenderer{
		requests: make(chan request, 128),
		conns:    make(chan *websocket.Conn, 4),
		status:   map[string]int{},
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Status{Owner: "mini", ItemID: "a", Seq: 2, Loaded: true, Volume: 80})
	})
	mux.HandleFunc("/player/", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.requests <- request{path: r.URL.Path, body: body}

		f.mu.Lock()
		code := f.status[r.URL.Path]
		f.mu.Unlock()
		if code != 0 {
			http.Error(w, "refused", code)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRenderer) fail(path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = code
}

func (f *fakeRenderer) next(t *testing.T) request {
	t.Helper()
	select {
	case r := <-f.requests:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no request")
		return request{}
	}
}

func (f *fakeRenderer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket client")
		return nil
	}
}

func send(t *testing.T, c *websocket.Conn, typ string, d EventData) {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(Event{Type: typ, Data: data}))
}

type sinkRecorder struct {
	ch chan engine.Event
}

func newSink() *sinkRecorder {
	return &sinkRecorder{ch: make(chan engine.Event, 16)}
}

func (s *sinkRecorder) sink(ev engine.Event) { s.ch <- ev }

func (s *sinkRecorder) next(t *testing.T) engine.Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return engine.Event{}
	}
}

func newRenderer(t *testing.T, url string) *Renderer {
	t.Helper()
	r := NewRenderer(url, zerolog.Nop())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func assertRef(t *testing.T, req request, owner, itemID string, seq uint64) {
	t.Helper()
	assert.Equal(t, owner, req.body["owner"], req.path)
	assert.Equal(t, itemID, req.body["item_id"], req.path)
	assert.EqualValues(t, seq, req.body["seq"], req.path)
}

func TestResource_CommandsInOrder(t *testing.T) {
	fr := newFakeRenderer(t)
	r := newRenderer(t, fr.srv.URL).Attach("mini", newSink().sink)

	tk := engine.Ticket{ItemID: "book-1", Seq: 3}
	r.Load(tk, "https://media.test/1.mp3", playlist.KindAudio)
	r.SetVolume(0.35)
	r.SetMuted(true)
	r.Play(tk)
	r.Seek(12.5)
	r.Pause()
	r.Unload()

	load := fr.next(t)
	assert.Equal(t, "/player/load", load.path)
	assertRef(t, load, "mini", "book-1", 3)
	assert.Equal(t, "https://media.test/1.mp3", load.body["url"])
	assert.Equal(t, "audio", load.body["kind"])

	vol := fr.next(t)
	assert.Equal(t, "/player/volume", vol.path)
	assertRef(t, vol, "mini", "book-1", 3)
	assert.EqualValues(t, 35, vol.body["volume"])

	mute := fr.next(t)
	assert.Equal(t, "/player/mute", mute.path)
	assertRef(t, mute, "mini", "book-1", 3)
	assert.Equal(t, true, mute.body["muted"])

	play := fr.next(t)
	assert.Equal(t, "/player/play", play.path)
	assertRef(t, play, "mini", "book-1", 3)

	seek := fr.next(t)
	assert.Equal(t, "/player/seek", seek.path)
	assertRef(t, seek, "mini", "book-1", 3)
	assert.EqualValues(t, 12500, seek.body["position"])

	pause := fr.next(t)
	assert.Equal(t, "/player/pause", pause.path)
	assertRef(t, pause, "mini", "book-1", 3)

	unload := fr.next(t)
	assert.Equal(t, "/player/unload", unload.path)
	assertRef(t, unload, "mini", "book-1", 3)
}

func TestRenderer_HandoffKeepsOrder(t *testing.T) {
	fr := newFakeRenderer(t)
	rend := newRenderer(t, fr.srv.URL)
	mini := rend.Attach("mini", newSink().sink)
	expanded := rend.Attach("expanded", newSink().sink)

	type want struct {
		path   string
		owner  string
		itemID string
		seq    uint64
	}
	var expected []want
	for i := uint64(1); i <= 10; i++ {
		mt := engine.Ticket{ItemID: "a", Seq: 2 * i}
		mini.Load(mt, "https://media.test/a.mp3", playlist.KindAudio)
		expected = append(expected, want{"/player/load", "mini", "a", mt.Seq})

		// mini hands over to expanded
		mini.Pause()
		mini.Unload()
		expanded.SetVolume(0.5)
		expanded.SetMuted(false)
		et := engine.Ticket{ItemID: "a", Seq: 2*i + 1}
		expanded.Load(et, "https://media.test/a.mp3", playlist.KindAudio)
		expected = append(expected,
			want{"/player/pause", "mini", "a", mt.Seq},
			want{"/player/unload", "mini", "a", mt.Seq},
			want{"/player/volume", "expanded", "", 0},
			want{"/player/mute", "expanded", "", 0},
			want{"/player/load", "expanded", "a", et.Seq},
		)

		// and back again
		expanded.Pause()
		expanded.Unload()
		expected = append(expected,
			want{"/player/pause", "expanded", "a", et.Seq},
			want{"/player/unload", "expanded", "a", et.Seq},
		)
	}

	for _, w := range expected {
		req := fr.next(t)
		require.Equal(t, w.path, req.path)
		assertRef(t, req, w.owner, w.itemID, w.seq)
	}
}

func TestRenderer_RoutesEventsByOwner(t *testing.T) {
	fr := newFakeRenderer(t)
	rend := newRenderer(t, fr.srv.URL)
	miniSink, expandedSink := newSink(), newSink()
	mini := rend.Attach("mini", miniSink.sink)
	rend.Attach("expanded", expandedSink.sink)
	c := fr.conn(t)

	send(t, c, TypePlaying, EventData{Owner: "expanded", ItemID: "a", Seq: 2})
	send(t, c, TypePaused, EventData{Owner: "mini", ItemID: "a", Seq: 1})
	send(t, c, TypePlaying, EventData{Owner: "nobody", ItemID: "a", Seq: 1})

	ev := expandedSink.next(t)
	assert.Equal(t, engine.EventPlaying, ev.Kind)
	assert.Equal(t, engine.Ticket{ItemID: "a", Seq: 2}, ev.Ticket)
	assert.Equal(t, engine.EventPaused, miniSink.next(t).Kind)

	// a closed resource no longer receives events
	require.NoError(t, mini.Close())
	send(t, c, TypeEnded, EventData{Owner: "mini", ItemID: "a", Seq: 1})
	send(t, c, TypeEnded, EventData{Owner: "expanded", ItemID: "a", Seq: 2})
	assert.Equal(t, engine.EventEnded, expandedSink.next(t).Kind)
	assert.Empty(t, miniSink.ch)
}

func TestResource_TranslatesEvents(t *testing.T) {
	fr := newFakeRenderer(t)
	sink := newSink()
	newRenderer(t, fr.srv.URL).Attach("mini", sink.sink)
	c := fr.conn(t)

	send(t, c, TypeMetadata, EventData{Owner: "expanded", ItemID: "a", Seq: 1, Duration: 1000})
	send(t, c, TypeMetadata, EventData{Owner: "mini", ItemID: "a", Seq: 1, Duration: 90000})
	send(t, c, TypeTimeUpdate, EventData{Owner: "mini", ItemID: "a", Seq: 1, Position: 1500})
	send(t, c, "volume", EventData{Owner: "mini", ItemID: "a", Seq: 1})
	send(t, c, TypePlaying, EventData{Owner: "mini", ItemID: "a", Seq: 1})
	send(t, c, TypePlayRejected, EventData{Owner: "mini", ItemID: "a", Seq: 1, Error: "autoplay blocked"})
	send(t, c, TypeEnded, EventData{Owner: "mini", ItemID: "a", Seq: 1})
	send(t, c, TypeError, EventData{Owner: "mini", ItemID: "a", Seq: 1, Error: "decode"})

	tk := engine.Ticket{ItemID: "a", Seq: 1}

	ev := sink.next(t)
	assert.Equal(t, engine.EventMetadata, ev.Kind)
	assert.Equal(t, tk, ev.Ticket)
	assert.Equal(t, 90.0, ev.Duration)

	ev = sink.next(t)
	assert.Equal(t, engine.EventTimeUpdate, ev.Kind)
	assert.Equal(t, 1.5, ev.Position)

	assert.Equal(t, engine.EventPlaying, sink.next(t).Kind)

	ev = sink.next(t)
	assert.Equal(t, engine.EventPlayRejected, ev.Kind)
	assert.ErrorIs(t, ev.Err, engine.ErrPlaybackRejected)
	assert.ErrorContains(t, ev.Err, "autoplay blocked")

	assert.Equal(t, engine.EventEnded, sink.next(t).Kind)

	ev = sink.next(t)
	assert.Equal(t, engine.EventError, ev.Kind)
	assert.EqualError(t, ev.Err, "decode")
}

func TestResource_PlayFailureIsRejection(t *testing.T) {
	fr := newFakeRenderer(t)
	fr.fail("/player/play", http.StatusForbidden)
	sink := newSink()
	r := newRenderer(t, fr.srv.URL).Attach("mini", sink.sink)

	tk := engine.Ticket{ItemID: "a", Seq: 9}
	r.Play(tk)

	ev := sink.next(t)
	assert.Equal(t, engine.EventPlayRejected, ev.Kind)
	assert.Equal(t, tk, ev.Ticket)
	assert.ErrorIs(t, ev.Err, engine.ErrPlaybackRejected)
}

func TestResource_LoadFailureIsError(t *testing.T) {
	fr := newFakeRenderer(t)
	fr.fail("/player/load", http.StatusNotFound)
	sink := newSink()
	r := newRenderer(t, fr.srv.URL).Attach("mini", sink.sink)

	tk := engine.Ticket{ItemID: "a", Seq: 1}
	r.Load(tk, "https://media.test/missing.mp3", playlist.KindAudio)

	ev := sink.next(t)
	assert.Equal(t, engine.EventError, ev.Kind)
	assert.Equal(t, tk, ev.Ticket)
	assert.ErrorContains(t, ev.Err, "404")
}

func TestResource_NoRendererReportsLoadError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink := newSink()
	r := newRenderer(t, url).Attach("mini", sink.sink)

	tk := engine.Ticket{ItemID: "a", Seq: 1}
	r.Load(tk, "https://media.test/a.mp3", playlist.KindAudio)

	ev := sink.next(t)
	assert.Equal(t, engine.EventError, ev.Kind)
	assert.Error(t, ev.Err)
}

func TestRenderer_CloseIsIdempotent(t *testing.T) {
	fr := newFakeRenderer(t)
	rend := NewRenderer(fr.srv.URL, zerolog.Nop())
	r := rend.Attach("mini", newSink().sink)

	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())
	require.NoError(t, rend.Close())
	assert.NoError(t, rend.Close())
	r.Pause() // dropped once closed
}

func TestClient_Status(t *testing.T) {
	fr := newFakeRenderer(t)

	s, err := NewClient(fr.srv.URL).Status()
	require.NoError(t, err)
	assert.Equal(t, "a", s.ItemID)
	assert.EqualValues(t, 2, s.Seq)
	assert.Equal(t, 80, s.Volume)
}

func TestClient_SetVolumeClamps(t *testing.T) {
	fr := newFakeRenderer(t)
	c := NewClient(fr.srv.URL)

	ref := Ref{Owner: "mini"}

	require.NoError(t, c.SetVolume(ref, 150))
	assert.EqualValues(t, 100, fr.next(t).body["volume"])
	require.NoError(t, c.SetVolume(ref, -4))
	assert.EqualValues(t, 0, fr.next(t).body["volume"])
}

func TestEventsURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:3678/events", EventsURL(LocalURL(3678)))
	assert.Equal(t, "wss://render.test/events", EventsURL("https://render.test"))
	assert.Equal(t, "ws://x/events", EventsURL("ws://x"))
}
