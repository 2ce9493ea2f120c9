package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cli_player/internal/engine"
	"cli_player/internal/session"
)

const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorCyan   = "\033[36m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
	ColorGray   = "\033[90m"
	ColorWhite  = "\033[97m"
	ColorBold   = "\033[1m"
)

// ClearScreen clears the terminal and moves the cursor to the top.
const ClearScreen = "\033[2J\033[H"

// Input is the state of the URL prompt.
type Input struct {
	Active bool
	Text   string
}

// FormatDuration converts a duration to MM:SS format
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Seconds converts fractional seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// CreateProgressBar creates a visual progress bar
func CreateProgressBar(current, total time.Duration, width int) string {
	if total <= 0 {
		return strings.Repeat("─", width)
	}

	percentage := float64(current) / float64(total)
	filled := int(float64(width) * percentage)

	if filled >= width {
		filled = width - 1
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("━", filled) + "●" + strings.Repeat("─", width-filled-1)
}

// TruncateString truncates a string to maxLen runes and adds "..." if needed
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// VolumeBar renders a ten-step volume meter.
func VolumeBar(level float64, muted bool) string {
	if muted || level <= 0 {
		return "🔇 " + strings.Repeat("░", 10)
	}
	filled := min(int(level*10+0.5), 10)
	return "🔊 " + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func statusLine(v session.View) string {
	switch {
	case v.Phase == engine.PhaseLoading:
		return ColorYellow + "… Loading" + ColorReset
	case v.IsPlaying:
		return ColorGreen + "▶ Playing" + ColorReset
	default:
		return ColorGreen + "⏸ Paused" + ColorReset
	}
}

func modeLine(v session.View) string {
	shuffle, loop := " ", " "
	if v.Shuffle {
		shuffle = "🔀"
	}
	if v.Loop {
		loop = "🔁"
	}
	return ColorYellow + shuffle + ColorReset + "   " + ColorYellow + loop + ColorReset
}

// Render draws the view. An empty view draws nothing.
func Render(w io.Writer, v session.View, in Input) {
	if v.Empty {
		return
	}

	fmt.Fprint(w, ClearScreen)
	if v.Expanded {
		renderExpanded(w, v)
	} else {
		renderMini(w, v)
	}

	if v.PanelOpen {
		renderPanel(w, v)
	}
	if v.LastError != nil {
		fmt.Fprintf(w, ColorRed+"  ✗ %s"+ColorReset+"\n\n", TruncateString(v.LastError.Error(), 70))
	}
	if in.Active {
		fmt.Fprintf(w, ColorCyan+"  url> "+ColorReset+"%s█\n\n", in.Text)
		return
	}

	fmt.Fprintln(w, ColorGray+"  [Space] play/pause  [←→] prev/next  [↑↓] volume  [m] mute  [s] shuffle  [r] loop"+ColorReset)
	fmt.Fprintln(w, ColorGray+"  [f] expand  [p] playlist  [/] open url  [x] clear  [q] quit"+ColorReset)
	fmt.Fprintln(w)
}

func renderMini(w io.Writer, v session.View) {
	elapsed, total := Seconds(v.Elapsed), Seconds(v.Duration)

	fmt.Fprintln(w)
	fmt.Fprintf(w, ColorBold+ColorWhite+"  %s"+ColorReset+ColorGray+"  %d/%d"+ColorReset+"\n",
		TruncateString(v.Item.Title, 50), v.Index+1, v.Count)
	fmt.Fprintf(w, "  %s %s %s %s  %s\n",
		statusLine(v),
		ColorGray+FormatDuration(elapsed)+ColorReset,
		ColorGreen+CreateProgressBar(elapsed, total, 30)+ColorReset,
		ColorGray+FormatDuration(total)+ColorReset,
		modeLine(v),
	)
	fmt.Fprintln(w)
}

func renderExpanded(w io.Writer, v session.View) {
	elapsed, total := Seconds(v.Elapsed), Seconds(v.Duration)

	fmt.Fprintln(w)
	label := "  ♪ NOW PLAYING"
	if v.Item.IsVideo() {
		label = "  ▣ NOW SHOWING"
	}
	fmt.Fprintln(w, ColorBold+ColorCyan+label+ColorReset)
	fmt.Fprintln(w)

	fmt.Fprintf(w, ColorBold+ColorWhite+"  %s"+ColorReset+"\n", TruncateString(v.Item.Title, 60))
	if v.Item.Author != "" {
		fmt.Fprintf(w, ColorGray+"  %s"+ColorReset+"\n", TruncateString(v.Item.Author, 60))
	}
	if v.Item.CoverImageURL != "" {
		fmt.Fprintf(w, ColorGray+"  %s"+ColorReset+"\n", TruncateString(v.Item.CoverImageURL, 60))
	}
	fmt.Fprintf(w, ColorGray+"  %d of %d"+ColorReset+"\n", v.Index+1, v.Count)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s %s\n",
		ColorGray+FormatDuration(elapsed)+ColorReset,
		ColorGreen+CreateProgressBar(elapsed, total, 50)+ColorReset,
		ColorGray+FormatDuration(total)+ColorReset,
	)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s   %s   %s\n", statusLine(v), modeLine(v), VolumeBar(v.Volume, v.Muted))
	fmt.Fprintln(w)
}

func renderPanel(w io.Writer, v session.View) {
	fmt.Fprintf(w, ColorBold+"  Playlist"+ColorReset+ColorGray+"  (%d played)"+ColorReset+"\n", v.HistorySize)
	for _, e := range v.Entries {
		marker, color := "   ", ColorGray
		if e.Current {
			marker, color = " ▶ ", ColorWhite
		}
		fmt.Fprintf(w, "%s%s%2d. %s%s\n", color, marker, e.Index+1, TruncateString(e.Item.Title, 56), ColorReset)
	}
	fmt.Fprintln(w)
}
