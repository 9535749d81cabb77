package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/encore/internal/core/ports"
)

const (
	searchMatchThreshold = 0.8
	searchLimit          = 5
)

// ResolveTrackID searches for title and artist and returns the ID of the
// best scoring result. It returns a ports.NoConfidentMatchError when nothing
// in the first page clears the confidence threshold.
func (c *Client) ResolveTrackID(ctx context.Context, title string, artist string) (string, error) {
	track, err := c.searchTrack(ctx, title, artist)
	if err != nil {
		return "", err
	}
	return track.ID, nil
}

func (c *Client) searchTrack(ctx context.Context, title string, artist string) (spotifyTrack, error) {
	searchURL, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: invalid search url: %w", err)
	}

	queryTitle := fallbackIfEmpty(normalizeSearchInput(title), title)
	queryArtist := fallbackIfEmpty(normalizeSearchInput(artist), artist)

	q := "track:" + queryTitle
	if strings.TrimSpace(queryArtist) != "" {
		q += " artist:" + queryArtist
	}

	query := searchURL.Query()
	query.Set("q", q)
	query.Set("type", "track")
	query.Set("limit", fmt.Sprint(searchLimit))
	searchURL.RawQuery = query.Encode()

	c.log.Debug().Str("url", searchURL.String()).Msg("search request")

	searchReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: failed to create search request: %w", err)
	}

	searchResp, err := c.doRequestWithRetry(searchReq, "search")
	if err != nil {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: search request failed: %w", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: search status %d", searchResp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(searchResp.Body).Decode(&body); err != nil {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: search decode error: %w", err)
	}

	items := body.Tracks.Items
	if len(items) > searchLimit {
		items = items[:searchLimit]
	}

	bestScore := 0.0
	bestIndex := -1
	for i, candidate := range items {
		candidateArtist := strings.Join(candidate.artistNames(), " ")
		score := ScoreResult(artist, title, candidateArtist, candidate.Name)
		c.log.Debug().
			Str("artist", candidateArtist).
			Str("title", candidate.Name).
			Float64("score", score).
			Msg("search candidate")
		if score >= c.threshold && score > bestScore && candidate.ID != "" {
			bestScore = score
			bestIndex = i
		}
	}

	if bestIndex == -1 {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: %w", ports.NoConfidentMatchError{Title: title, Artist: artist})
	}

	return items[bestIndex], nil
}
