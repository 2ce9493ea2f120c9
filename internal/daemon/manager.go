// Package daemon runs the renderer daemon as a child process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cli_player/internal/player"
)

// ErrNotReady is returned when the renderer never reports its status.
var ErrNotReady = errors.New("renderer did not become ready")

// Manager handles the lifecycle of the renderer subprocess.
type Manager struct {
	command      []string
	client       *player.Client
	cmd          *exec.Cmd
	log          zerolog.Logger
	readyTimeout time.Duration
	pollInterval time.Duration
}

// NewManager creates a Manager for command, a space separated command
// line. An empty command means the renderer is run externally.
func NewManager(command, baseURL string, log zerolog.Logger) *Manager {
	return &Manager{
		command:      strings.Fields(command),
		client:       player.NewClient(strings.TrimRight(baseURL, "/")),
		log:          log.With().Str("component", "daemon").Logger(),
		readyTimeout: 30 * time.Second,
		pollInterval: 500 * time.Millisecond,
	}
}

// Start launches the renderer and polls its status endpoint until it
// responds or the timeout expires.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.command) == 0 {
		return nil
	}

	m.cmd = exec.Command(m.command[0], m.command[1:]...)
	if err := m.cmd.Start(); err != nil {
		m.cmd = nil
		return fmt.Errorf("starting renderer: %w", err)
	}
	m.log.Info().Int("pid", m.cmd.Process.Pid).Str("command", m.command[0]).Msg("renderer started")

	if err := m.waitReady(ctx); err != nil {
		m.Stop()
		return err
	}
	m.log.Info().Msg("renderer ready")
	return nil
}

// Stop sends SIGTERM to the renderer process.
func (m *Manager) Stop() {
	if m.cmd == nil || m.cmd.Process == nil {
		return
	}
	_ = m.cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_ = m.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = m.cmd.Process.Kill()
	}
	m.cmd = nil
}

// waitReady polls the renderer status until it reports a decodable state.
func (m *Manager) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(m.readyTimeout)

	for time.Now().Before(deadline) {
		st, err := m.client.Status()
		if err == nil {
			m.log.Debug().Bool("loaded", st.Loaded).Str("owner", st.Owner).Msg("renderer status")
			return nil
		}
		m.log.Debug().Err(err).Msg("renderer not ready")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
	return fmt.Errorf("%w within %v", ErrNotReady, m.readyTimeout)
}
