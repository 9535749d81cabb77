package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

// ErrNoConfidentMatch indicates search results did not meet the confidence threshold.
var ErrNoConfidentMatch = errors.New("no confident match")

// NoConfidentMatchError provides context for a failed track match.
type NoConfidentMatchError struct {
	Title  string
	Artist string
}

func (e NoConfidentMatchError) Error() string {
	if e.Title == "" && e.Artist == "" {
		return ErrNoConfidentMatch.Error()
	}
	return fmt.Sprintf("no confident match found for title %q artist %q", e.Title, e.Artist)
}

func (e NoConfidentMatchError) Is(target error) bool {
	return target == ErrNoConfidentMatch
}

// ListeningHistory supplies the listener's recent playback events.
type ListeningHistory interface {
	RecentlyPlayed(ctx context.Context, limit int) ([]domain.Observation, error)
}

// TrackResolver maps a catalog title and artist back to a streaming-service track ID.
type TrackResolver interface {
	ResolveTrackID(ctx context.Context, title, artist string) (string, error)
}

// PlaylistWriter replaces the contents of a playlist.
type PlaylistWriter interface {
	ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) error
}
