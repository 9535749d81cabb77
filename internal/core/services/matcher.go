package services

import (
	"strings"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/metrics"
)

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Match joins recent-play observations against the catalog.
//
// A catalog row is a candidate when its trimmed, lower-cased track name equals
// the observation's. Candidates are tried in catalog order and, for each, the
// observed artists in order; the first artist contained in the row's artist
// name wins. Observations without a candidate or without an artist hit are
// logged and left out. The result is keyed by the observed display name as
// given, so a later observation with the same name replaces an earlier one.
func Match(observations []domain.Observation, catalog domain.Catalog) *domain.MatchSet {
	log := logging.With().Str("component", "matcher").Logger()
	matches := domain.NewMatchSet()

	byName := make(map[string][]int, len(catalog))
	for i, row := range catalog {
		key := normalizeKey(row.TrackName)
		byName[key] = append(byName[key], i)
	}

	for _, obs := range observations {
		log.Debug().
			Str("track", obs.TrackName).
			Strs("artists", obs.Artists).
			Msg("checking observation")

		candidates := byName[normalizeKey(obs.TrackName)]
		if len(candidates) == 0 {
			log.Warn().Str("track", obs.TrackName).Msg("no track match found in catalog")
			metrics.UnmatchedTotal.WithLabelValues("track").Inc()
			continue
		}

		row, artist, ok := firstArtistHit(catalog, candidates, obs.Artists)
		if !ok {
			log.Warn().Str("track", obs.TrackName).Msg("no matching artist found for track")
			metrics.UnmatchedTotal.WithLabelValues("artist").Inc()
			continue
		}

		if replaced := matches.Set(domain.Match{ObservedName: obs.TrackName, Row: row}); replaced {
			log.Debug().Str("track", obs.TrackName).Msg("replacing earlier match for repeated track")
		}
		metrics.MatchesTotal.Inc()
		log.Info().
			Str("track", obs.TrackName).
			Str("artist", artist).
			Int("catalog_index", row.Index).
			Msg("matched with artist")
	}

	log.Info().Int("matched", matches.Len()).Msg("total matched tracks")
	return matches
}

func firstArtistHit(catalog domain.Catalog, candidates []int, artists []string) (domain.CatalogRow, string, bool) {
	for _, i := range candidates {
		row := catalog[i]
		rowArtist := normalizeKey(row.ArtistName)
		for _, artist := range artists {
			if strings.Contains(rowArtist, normalizeKey(artist)) {
				return row, artist, true
			}
		}
	}
	return domain.CatalogRow{}, "", false
}
