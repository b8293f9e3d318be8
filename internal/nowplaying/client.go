// Package nowplaying предоставляет клиент внешнего now-playing фида радиостанции.
package nowplaying

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vndr/vndr-music/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с now-playing фидом.
type Client struct {
	feedURL    string
	apiKey     string
	httpClient *http.Client
}

type feedResponse struct {
	NowPlaying struct {
		Song struct {
			ID     string `json:"id"`
			Text   string `json:"text"`
			Artist string `json:"artist"`
			Title  string `json:"title"`
			Album  string `json:"album"`
			Art    string `json:"art"`
		} `json:"song"`
	} `json:"now_playing"`
}

// NewClient создаёт клиент фида с указанным адресом и API-ключом.
func NewClient(feedURL, apiKey string) *Client {
	return &Client{
		feedURL: feedURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchCurrent запрашивает информацию о текущем треке.
// Любой не-2xx статус трактуется как ошибка; повторных попыток нет —
// следующий опрос произойдёт на очередном тике адаптера.
func (c *Client) FetchCurrent(ctx context.Context) (*model.NowPlayingTrack, error) {
	if c == nil || c.feedURL == "" {
		return nil, fmt.Errorf("now-playing client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	song := feed.NowPlaying.Song
	if song.ID == "" {
		return nil, fmt.Errorf("feed returned empty song id")
	}

	return &model.NowPlayingTrack{
		TrackID:    song.ID,
		ArtistName: song.Artist,
		Title:      song.Title,
	}, nil
}
