package services

import (
	"sort"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/metrics"
)

// DefaultTopN is the number of recommendations produced per matched track.
const DefaultTopN = 5

// RecommendOptions tunes the similarity recommender.
type RecommendOptions struct {
	TopN int
	// ExcludeSelf drops the target row itself from its candidate pool.
	// Left false, a target present in the catalog ranks first with score 1.
	ExcludeSelf bool
}

func (o RecommendOptions) topN() int {
	if o.TopN <= 0 {
		return DefaultTopN
	}
	return o.TopN
}

// Recommend ranks catalog rows by cosine similarity to target.
// It returns ok=false when the target itself has missing features; rows with
// missing features are never candidates. Ties keep catalog order.
func Recommend(target domain.CatalogRow, catalog domain.Catalog, opts RecommendOptions) (domain.Recommendation, bool) {
	if !target.HasFeatures() {
		return domain.Recommendation{}, false
	}

	scored := make([]domain.ScoredRow, 0, len(catalog))
	for _, row := range catalog {
		if !row.HasFeatures() {
			continue
		}
		if opts.ExcludeSelf && row.Index == target.Index {
			continue
		}
		scored = append(scored, domain.ScoredRow{
			Row:   row,
			Score: domain.Cosine(target.Features, row.Features),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if n := opts.topN(); len(scored) > n {
		scored = scored[:n]
	}

	return domain.Recommendation{
		Source: domain.Match{ObservedName: target.TrackName, Row: target},
		Items:  scored,
	}, true
}

// RecommendAll runs Recommend for every match in insertion order. Matches
// whose target lacks features are logged and skipped.
func RecommendAll(matches *domain.MatchSet, catalog domain.Catalog, opts RecommendOptions) []domain.Recommendation {
	log := logging.With().Str("component", "recommender").Logger()
	out := make([]domain.Recommendation, 0, matches.Len())

	for _, m := range matches.Entries() {
		log.Info().Str("track", m.ObservedName).Msg("generating recommendations")
		rec, ok := Recommend(m.Row, catalog, opts)
		if !ok {
			log.Warn().
				Str("track", m.ObservedName).
				Str("missing", m.Row.MissingNames()).
				Msg("skipped recommendation due to incomplete data")
			metrics.UnavailableTargetsTotal.Inc()
			continue
		}
		rec.Source = m
		out = append(out, rec)
		metrics.RecommendationsTotal.Inc()
	}

	log.Info().Int("recommended", len(out)).Msg("generated recommendations")
	return out
}
