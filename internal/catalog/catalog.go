// Package catalog fetches book and course metadata from the content API
// and shapes it into playlist items. Responses are taken as-is; the only
// check on media is whether a URL is present.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"cli_player/internal/playlist"
)

const (
	apiBookContent = "/fs-webtool/web/book/v101/content"
	apiCourseInfo  = "/fs-webtool/web/course/v100/content"
	apiProgramList = "/fs-webtool/web/course/v100/programList"

	statusOK        = "0000"
	programPageSize = 100
)

var (
	// ErrNotFound is returned for a 404 from the API.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnauthorized is returned for a 401 from the API.
	ErrUnauthorized = errors.New("catalog: unauthorized")
)

// APIError is a well-formed response whose envelope reports failure.
type APIError struct {
	Status    string
	Msg       string
	SystemMsg string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog: status %s: %s %s", e.Status, e.Msg, e.SystemMsg)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Msg       string          `json:"msg"`
	Status    string          `json:"status"`
	SystemMsg string          `json:"systemMsg"`
}

// Client talks to the content API.
type Client struct {
	http  *resty.Client
	token string
}

// New creates a client for baseURL. token is sent with requests that need it.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeaders(map[string]string{
			"Accept":       "application/json, text/plain, */*",
			"Content-Type": "application/json;charset=UTF-8",
		})
	return &Client{http: c, token: token}
}

func (c *Client) post(ctx context.Context, path string, body, v any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("catalog %s: unexpected status %d", path, resp.StatusCode())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("catalog %s: decode envelope: %w", path, err)
	}
	if env.Status != statusOK {
		return &APIError{Status: env.Status, Msg: env.Msg, SystemMsg: env.SystemMsg}
	}
	if len(env.Data) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("catalog %s: decode data: %w", path, err)
	}
	return nil
}

type mediaInfo struct {
	Duration      int    `json:"duration"`
	MediaCoverURL string `json:"mediaCoverUrl"`
	MediaURL      string `json:"mediaUrl"`
}

type bookContent struct {
	BookInfo struct {
		BookID      int    `json:"bookId"`
		CoverImg    string `json:"coverImg"`
		SpeakerName string `json:"speakerName"`
		Title       string `json:"title"`
	} `json:"bookInfo"`
	AudioInfo mediaInfo `json:"audioInfo"`
	VideoInfo mediaInfo `json:"videoInfo"`
}

// BookItem returns the playable item for a book. Audio is preferred; a
// book with only video gets a video item.
func (c *Client) BookItem(ctx context.Context, bookID int) (playlist.Item, error) {
	var bc bookContent
	req := map[string]any{"bookId": bookID, "token": c.token}
	if err := c.post(ctx, apiBookContent, req, &bc); err != nil {
		return playlist.Item{}, err
	}

	media, kind := bc.AudioInfo, playlist.KindAudio
	if media.MediaURL == "" && bc.VideoInfo.MediaURL != "" {
		media, kind = bc.VideoInfo, playlist.KindVideo
	}
	cover := bc.BookInfo.CoverImg
	if cover == "" {
		cover = media.MediaCoverURL
	}
	return playlist.Item{
		ID:            BookID(bookID),
		Title:         bc.BookInfo.Title,
		MediaURL:      media.MediaURL,
		Kind:          kind,
		DurationHint:  float64(media.Duration),
		CoverImageURL: cover,
		Author:        bc.BookInfo.SpeakerName,
	}, nil
}

type courseInfo struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type program struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Seq           string `json:"seq"`
	Duration      int    `json:"duration"`
	AudioURL      string `json:"audioUrl"`
	TitleImageURL string `json:"titleImageUrl"`
}

// CourseItems returns one item per course article, in API order.
func (c *Client) CourseItems(ctx context.Context, courseID int) ([]playlist.Item, error) {
	var info courseInfo
	if err := c.post(ctx, apiCourseInfo, map[string]any{"courseId": courseID}, &info); err != nil {
		return nil, err
	}

	var programs []program
	req := map[string]any{
		"courseId": courseID,
		"page":     map[string]int{"pageNo": 1, "pageSize": programPageSize},
	}
	if err := c.post(ctx, apiProgramList, req, &programs); err != nil {
		return nil, err
	}

	items := make([]playlist.Item, 0, len(programs))
	for _, p := range programs {
		items = append(items, playlist.Item{
			ID:            ArticleID(courseID, p.ID),
			Title:         p.Seq + " | " + p.Title,
			MediaURL:      p.AudioURL,
			Kind:          playlist.KindAudio,
			DurationHint:  float64(p.Duration),
			CoverImageURL: p.TitleImageURL,
			Author:        info.Author,
		})
	}
	return items, nil
}

// BookID is the playlist id of a book.
func BookID(bookID int) string {
	return "book-" + strconv.Itoa(bookID)
}

// ArticleID is the playlist id of a course article.
func ArticleID(courseID, articleID int) string {
	return "course-" + strconv.Itoa(courseID) + "-article-" + strconv.Itoa(articleID)
}
