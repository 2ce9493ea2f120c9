package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"cli_player/internal/config"
	"cli_player/internal/daemon"
	"cli_player/internal/engine"
	"cli_player/internal/keyboard"
	"cli_player/internal/logging"
	"cli_player/internal/player"
	"cli_player/internal/playlist"
	"cli_player/internal/prefs"
	"cli_player/internal/session"
	"cli_player/internal/speaker"
)

func main() {
	cfg := config.Load()

	log, closer, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[✗] %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg, log, os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("player exited")
		fmt.Fprintf(os.Stderr, "[✗] %v\n", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	items, err := resolve(ctx, cfg, args)
	if err != nil {
		return err
	}

	mini, expanded, stopRenderer, err := renderers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopRenderer()

	backend, closeBackend := openPrefs(ctx, cfg, log)
	defer closeBackend()

	store := playlist.NewStore()
	prefs.Restore(ctx, backend, store, log)
	detach := prefs.NewPersister(backend, log).Attach(store)
	defer detach()

	loop := session.NewLoop()
	sess := session.New(store, session.Options{
		Mini:     mini,
		Expanded: expanded,
		Logger:   log,
		Post:     loop.Post,
	})
	defer sess.Close()

	registry := &keyboard.Registry{}
	sh := newShell(sess, registry, os.Stdout, quit)
	unmount := sh.mount()
	defer unmount()

	if len(items) > 0 {
		sess.SetPlaylist(items, 0)
		sess.Play()
	}

	// Put terminal in raw mode for keyboard input
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("could not set raw terminal: %w", err)
	}
	defer term.Restore(fd, oldState)

	go readKeys(os.Stdin, loop, sh)
	go tick(ctx, loop, sh)

	sh.render()
	err = loop.Run(ctx)
	term.Restore(fd, oldState)
	fmt.Println("\r\nShutting down...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// renderers builds the resource factories of both surfaces, starting the
// renderer daemon when one is configured. Both surfaces share one device
// or one renderer connection.
func renderers(ctx context.Context, cfg *config.Config, log zerolog.Logger) (mini, expanded engine.ResourceFactory, stop func(), err error) {
	if cfg.Renderer != config.RendererRemote {
		dev := speaker.SoundCard()
		log.Info().Msg("using local speaker")
		return speaker.Factory(dev, log), speaker.Factory(dev, log), func() {}, nil
	}

	base := cfg.RendererURL
	if base == "" {
		base = player.LocalURL(cfg.RendererPort)
	}
	mgr := daemon.NewManager(cfg.RendererCmd, base, log)
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start renderer: %w", err)
	}
	log.Info().Str("renderer", base).Msg("using remote renderer")
	rend := player.NewRenderer(base, log)
	stop = func() {
		_ = rend.Close()
		mgr.Stop()
	}
	return rend.Factory(session.SurfaceMini.String()),
		rend.Factory(session.SurfaceExpanded.String()),
		stop, nil
}

// openPrefs picks the preference backend. An unreachable redis falls back
// to the file backend.
func openPrefs(ctx context.Context, cfg *config.Config, log zerolog.Logger) (prefs.Backend, func()) {
	path := cfg.PrefsPath
	if path == "" {
		path = prefs.DefaultPath()
	}
	file := prefs.NewFileBackend(path)
	if cfg.PrefsBackend != config.PrefsRedis {
		return file, func() {}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rdb, err := prefs.DialRedis(dialCtx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Str("fallback", path).Msg("redis unavailable")
		return file, func() {}
	}
	return prefs.NewRedisBackend(rdb), func() { _ = rdb.Close() }
}

// readKeys reads raw key bytes from r and hands them to the shell on the
// loop. Arrow keys produce 3-byte escape sequences (ESC [ X).
func readKeys(r io.Reader, loop *session.Loop, sh *shell) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		key := make([]byte, n)
		copy(key, buf[:n])
		loop.Post(func() { sh.handle(key) })
	}
}

// tick redraws while the loop runs; position updates arrive between keys.
func tick(ctx context.Context, loop *session.Loop, sh *shell) {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			loop.Post(sh.render)
		}
	}
}
