package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"cli_player/internal/catalog"
	"cli_player/internal/config"
	"cli_player/internal/playlist"
)

const usage = `usage: player [book <id> | course <id> | url <media-url>...]`

var errUsage = errors.New(usage)

var videoExts = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".m3u8": true,
}

// itemFromURL builds an ad-hoc item. The URL is the id, so opening the
// same URL twice plays the existing entry.
func itemFromURL(raw string) (playlist.Item, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return playlist.Item{}, fmt.Errorf("invalid media url %q", raw)
	}

	kind := playlist.KindAudio
	if videoExts[strings.ToLower(path.Ext(u.Path))] {
		kind = playlist.KindVideo
	}
	title := path.Base(u.Path)
	if title == "." || title == "/" {
		title = raw
	}
	return playlist.Item{
		ID:       "url:" + raw,
		Title:    title,
		MediaURL: raw,
		Kind:     kind,
	}, nil
}

// resolve turns command line arguments into the initial playlist.
func resolve(ctx context.Context, cfg *config.Config, args []string) ([]playlist.Item, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args) < 2 {
		return nil, errUsage
	}

	switch args[0] {
	case "url":
		items := make([]playlist.Item, 0, len(args)-1)
		for _, a := range args[1:] {
			it, err := itemFromURL(a)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		return items, nil

	case "book", "course":
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid %s id %q", args[0], args[1])
		}
		if cfg.CatalogURL == "" {
			return nil, errors.New("PLAYER_CATALOG_URL is not set")
		}
		c := catalog.New(cfg.CatalogURL, cfg.CatalogToken)
		if args[0] == "course" {
			return c.CourseItems(ctx, id)
		}
		it, err := c.BookItem(ctx, id)
		if err != nil {
			return nil, err
		}
		return []playlist.Item{it}, nil
	}
	return nil, errUsage
}
