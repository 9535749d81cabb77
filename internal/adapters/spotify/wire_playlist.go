package spotify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// playlistBatchSize is the most URIs Spotify accepts per playlist call.
const playlistBatchSize = 100

// ReplaceTracks makes trackIDs the entire contents of the playlist, in order.
// The first batch replaces whatever the playlist held; later batches append.
// An empty trackIDs clears the playlist.
func (c *Client) ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if playlistID == "" {
		return fmt.Errorf("spotify adapter: empty playlist id")
	}

	uris := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		uris = append(uris, trackURI(id))
	}

	batches := chunk(uris, playlistBatchSize)
	if len(batches) == 0 {
		batches = [][]string{{}}
	}

	for i, batch := range batches {
		method, endpoint := http.MethodPost, "playlist_add"
		if i == 0 {
			method, endpoint = http.MethodPut, "playlist_replace"
		}
		if err := c.sendPlaylistBatch(ctx, method, endpoint, playlistID, batch); err != nil {
			return err
		}
	}

	c.log.Info().
		Str("playlist_id", playlistID).
		Int("tracks", len(uris)).
		Int("batches", len(batches)).
		Msg("replaced playlist tracks")
	return nil
}

func (c *Client) sendPlaylistBatch(ctx context.Context, method, endpoint, playlistID string, uris []string) error {
	bodyBytes, err := json.Marshal(playlistTracksRequest{URIs: uris})
	if err != nil {
		return fmt.Errorf("spotify adapter: failed to marshal request: %w", err)
	}

	target := fmt.Sprintf("%s/playlists/%s/tracks", c.baseURL, url.PathEscape(playlistID))
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("spotify adapter: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doRequestWithRetry(req, endpoint)
	if err != nil {
		return fmt.Errorf("spotify adapter: %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("spotify adapter: %s status %d", endpoint, resp.StatusCode)
	}
	return nil
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
