package main

import (
	"bytes"
	"io"
	"strings"

	"cli_player/internal/display"
	"cli_player/internal/keyboard"
	"cli_player/internal/session"
)

// shell is the terminal surface. It runs entirely on the session loop.
type shell struct {
	sess     *session.Session
	registry *keyboard.Registry
	out      io.Writer
	quit     func()

	input    display.Input
	inputErr string
}

// newShell binds a shell to sess. Every shell of a process shares registry
// so only the oldest mounted controller handles global keys.
func newShell(sess *session.Session, registry *keyboard.Registry, out io.Writer, quit func()) *shell {
	return &shell{
		sess:     sess,
		registry: registry,
		out:      out,
		quit:     quit,
	}
}

// mount registers a global key controller bound to the session.
func (sh *shell) mount() (unmount func()) {
	focus := keyboard.FocusFunc(func() bool { return sh.input.Active })
	return sh.registry.Mount(keyboard.NewController(sh.sess, focus))
}

// handle processes a raw key sequence.
func (sh *shell) handle(key []byte) {
	defer sh.render()

	if sh.registry.Dispatch(key) {
		return
	}
	if sh.input.Active {
		sh.edit(key)
		return
	}
	if len(key) != 1 {
		return
	}

	switch c := key[0]; {
	case c == 'q', c == 3: // Ctrl+C
		sh.quit()
	case c == 'f':
		sh.sess.ToggleExpanded()
	case c == 'p':
		sh.sess.TogglePanel()
	case c == 's':
		sh.sess.ToggleShuffle()
	case c == 'r':
		sh.sess.ToggleLoop()
	case c == 'x':
		sh.sess.ClearPlaylist()
	case c == 'c':
		sh.sess.ClearHistory()
	case c == '/':
		sh.input = display.Input{Active: true}
		sh.inputErr = ""
	case c >= '1' && c <= '9':
		sh.sess.JumpTo(int(c - '1'))
	}
}

// edit handles keys while the URL prompt has focus.
func (sh *shell) edit(key []byte) {
	switch {
	case len(key) == 1 && (key[0] == '\r' || key[0] == '\n'):
		text := sh.input.Text
		sh.input = display.Input{}
		it, err := itemFromURL(text)
		if err != nil {
			sh.inputErr = err.Error()
			return
		}
		sh.sess.PlayNow(it)

	case len(key) == 1 && (key[0] == 0x1b || key[0] == 3):
		sh.input = display.Input{}

	case len(key) == 1 && (key[0] == 127 || key[0] == 8):
		r := []rune(sh.input.Text)
		if len(r) > 0 {
			sh.input.Text = string(r[:len(r)-1])
		}

	case len(key) > 0 && key[0] >= 0x20 && key[0] != 0x7f:
		sh.input.Text += string(key)
	}
}

func (sh *shell) render() {
	var buf bytes.Buffer
	v := sh.sess.View()
	if v.Empty {
		buf.WriteString(display.ClearScreen)
		buf.WriteString("\n  Nothing queued.\n")
		if sh.input.Active {
			buf.WriteString(display.ColorCyan + "  url> " + display.ColorReset + sh.input.Text + "█\n")
		} else {
			buf.WriteString(display.ColorGray + "  [/] open url  [q] quit" + display.ColorReset + "\n")
		}
	} else {
		display.Render(&buf, v, sh.input)
	}
	if sh.inputErr != "" {
		buf.WriteString(display.ColorRed + "  ✗ " + sh.inputErr + display.ColorReset + "\n")
	}
	// raw mode disables output post-processing
	_, _ = io.WriteString(sh.out, strings.ReplaceAll(buf.String(), "\n", "\r\n"))
}
