package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/reelmatch/backend/internal/models"
)

// Client fetches library contents from a Plex-compatible media server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a catalog client for the given server address and
// server-level auth token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// mediaContainer mirrors the subset of the media server's library response
// the picker needs.
type mediaContainer struct {
	MediaContainer struct {
		Metadata []struct {
			RatingKey string `json:"ratingKey"`
			Title     string `json:"title"`
			Year      int    `json:"year"`
			Type      string `json:"type"`
			Thumb     string `json:"thumb"`
			Summary   string `json:"summary"`
			Genre     []tag  `json:"Genre"`
			Label     []tag  `json:"Label"`
			Media     []struct {
				AudioLanguage string `json:"audioLanguage"`
			} `json:"Media"`
			ViewCount int `json:"viewCount"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

type tag struct {
	Tag string `json:"tag"`
}

// GetItems returns the combined contents of the requested libraries,
// restricted to the session's media type.
func (c *Client) GetItems(ctx context.Context, libraryKeys []string, mediaType string) ([]models.MediaItem, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrProviderUnavailable
	}

	var items []models.MediaItem
	for _, key := range libraryKeys {
		libItems, err := c.fetchLibrary(ctx, key, mediaType)
		if err != nil {
			return nil, err
		}
		items = append(items, libItems...)
	}
	return items, nil
}

func (c *Client) fetchLibrary(ctx context.Context, libraryKey, mediaType string) ([]models.MediaItem, error) {
	endpoint := fmt.Sprintf("%s/library/sections/%s/all", c.baseURL, url.PathEscape(libraryKey))

	container, err := c.getJSON(ctx, endpoint, c.token)
	if err != nil {
		return nil, fmt.Errorf("fetch library %s: %w", libraryKey, err)
	}

	var items []models.MediaItem
	for _, md := range container.MediaContainer.Metadata {
		if !typeMatches(md.Type, mediaType) {
			continue
		}
		item := models.MediaItem{
			ItemKey:   md.RatingKey,
			Title:     md.Title,
			Year:      md.Year,
			MediaType: md.Type,
			Thumb:     md.Thumb,
			Summary:   md.Summary,
		}
		for _, g := range md.Genre {
			item.Genres = append(item.Genres, g.Tag)
		}
		for _, l := range md.Label {
			item.Labels = append(item.Labels, l.Tag)
		}
		for _, m := range md.Media {
			if m.AudioLanguage != "" {
				item.Languages = append(item.Languages, m.AudioLanguage)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// WatchedKeys lists items the owner of authToken has already watched across
// all libraries of the matching type.
func (c *Client) WatchedKeys(ctx context.Context, authToken, mediaType string) ([]string, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrProviderUnavailable
	}

	endpoint := fmt.Sprintf("%s/library/all?viewCount>=1", c.baseURL)
	container, err := c.getJSON(ctx, endpoint, authToken)
	if err != nil {
		return nil, fmt.Errorf("fetch watched items: %w", err)
	}

	var keys []string
	for _, md := range container.MediaContainer.Metadata {
		if !typeMatches(md.Type, mediaType) {
			continue
		}
		if md.ViewCount > 0 {
			keys = append(keys, md.RatingKey)
		}
	}
	return keys, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, token string) (mediaContainer, error) {
	var container mediaContainer

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return container, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return container, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return container, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		return container, fmt.Errorf("decode response: %w", err)
	}
	return container, nil
}

func typeMatches(itemType, mediaType string) bool {
	switch mediaType {
	case models.MediaTypeMovies:
		return itemType == "movie"
	case models.MediaTypeShows:
		return itemType == "show"
	case models.MediaTypeBoth:
		return itemType == "movie" || itemType == "show"
	}
	return false
}
