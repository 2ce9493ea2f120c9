package player

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an HTTP client for the renderer REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the renderer at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// LocalURL is the base URL of a renderer listening on localhost.
func LocalURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// Status fetches the renderer state from GET /status.
func (c *Client) Status() (*Status, error) {
	resp, err := c.http.Get(c.baseURL + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &s, nil
}

// Load binds media to the renderer via POST /player/load.
func (c *Client) Load(req LoadRequest) error {
	return c.postJSON("/player/load", req)
}

// Play starts output for the given load via POST /player/play.
func (c *Client) Play(ref Ref) error {
	return c.postJSON("/player/play", ref)
}

// Pause stops output via POST /player/pause.
func (c *Client) Pause(ref Ref) error {
	return c.postJSON("/player/pause", ref)
}

// Seek moves to an absolute position in milliseconds via POST /player/seek.
func (c *Client) Seek(ref Ref, ms int) error {
	return c.postJSON("/player/seek", struct {
		Ref
		Position int  `json:"position"`
		Relative bool `json:"relative"`
	}{ref, ms, false})
}

// SetVolume sets the absolute volume (0–100) via POST /player/volume.
func (c *Client) SetVolume(ref Ref, vol int) error {
	vol = min(max(vol, 0), 100)
	return c.postJSON("/player/volume", struct {
		Ref
		Volume   int  `json:"volume"`
		Relative bool `json:"relative"`
	}{ref, vol, false})
}

// SetMuted mutes or unmutes via POST /player/mute.
func (c *Client) SetMuted(ref Ref, muted bool) error {
	return c.postJSON("/player/mute", struct {
		Ref
		Muted bool `json:"muted"`
	}{ref, muted})
}

// Unload releases the media via POST /player/unload.
func (c *Client) Unload(ref Ref) error {
	return c.postJSON("/player/unload", ref)
}

// postJSON sends a POST with a JSON body.
func (c *Client) postJSON(path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, b)
	}
	return nil
}
