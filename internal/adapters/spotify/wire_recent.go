package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

// maxRecentLimit is the largest page the recently-played endpoint serves.
const maxRecentLimit = 50

// RecentlyPlayed returns the listener's most recent plays, newest first.
// Items without a track name are dropped.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]domain.Observation, error) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	recentURL, err := url.Parse(c.baseURL + "/me/player/recently-played")
	if err != nil {
		return nil, fmt.Errorf("spotify adapter: invalid recently-played url: %w", err)
	}
	query := recentURL.Query()
	query.Set("limit", strconv.Itoa(limit))
	recentURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recentURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("spotify adapter: failed to create recently-played request: %w", err)
	}

	resp, err := c.doRequestWithRetry(req, "recently_played")
	if err != nil {
		return nil, fmt.Errorf("spotify adapter: failed to fetch recent tracks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify adapter: recently-played status %d", resp.StatusCode)
	}

	var body recentlyPlayedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("spotify adapter: recently-played decode error: %w", err)
	}

	out := make([]domain.Observation, 0, len(body.Items))
	for _, item := range body.Items {
		if item.Track.Name == "" {
			continue
		}
		out = append(out, mapObservation(item.Track, item.PlayedAt))
	}

	c.log.Debug().Int("observations", len(out)).Msg("fetched recent tracks")
	return out, nil
}
