package domain

import "errors"

var (
	ErrDuplicateTrack = errors.New("domain: duplicate track")
	ErrNotFound       = errors.New("domain: not found")
)

// Playlist is the set of Spotify track IDs a run writes to the target playlist.
type Playlist struct {
	ID       string
	TrackIDs []string
}

func NewPlaylist(id string) (*Playlist, error) {
	if id == "" {
		return nil, errors.New("domain: invalid argument")
	}
	return &Playlist{
		ID:       id,
		TrackIDs: []string{},
	}, nil
}

// AddTrack appends a track ID while preventing duplicates.
// If the ID is empty or already present, AddTrack leaves the playlist unchanged
// and returns ErrDuplicateTrack for the duplicate case.
func (p *Playlist) AddTrack(trackID string) error {
	if trackID == "" {
		return errors.New("domain: invalid argument")
	}
	for _, ex := range p.TrackIDs {
		if ex == trackID {
			return ErrDuplicateTrack
		}
	}
	p.TrackIDs = append(p.TrackIDs, trackID)
	return nil
}
