package domain

// ScoredRow is a catalog row with its similarity to a recommendation source.
type ScoredRow struct {
	Row   CatalogRow
	Score float64
}

// Recommendation is the ranked list produced for one matched track.
type Recommendation struct {
	Source Match
	Items  []ScoredRow
}
