package spotify

import (
	"time"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

type spotifyArtist struct {
	Name string `json:"name"`
}

// spotifyTrack is the simplified track object embedded in most responses.
type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	URI     string          `json:"uri"`
	Artists []spotifyArtist `json:"artists"`
}

type recentlyPlayedResponse struct {
	Items []struct {
		Track    spotifyTrack `json:"track"`
		PlayedAt time.Time    `json:"played_at"`
	} `json:"items"`
}

type searchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

// playlistTracksRequest is the body of both the replace and the add calls.
type playlistTracksRequest struct {
	URIs []string `json:"uris"`
}

func (st spotifyTrack) artistNames() []string {
	names := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		names = append(names, a.Name)
	}
	return names
}

func trackURI(id string) string {
	return "spotify:track:" + id
}

func mapObservation(track spotifyTrack, playedAt time.Time) domain.Observation {
	return domain.Observation{
		TrackID:   track.ID,
		TrackName: track.Name,
		Artists:   track.artistNames(),
		PlayedAt:  playedAt,
	}
}
