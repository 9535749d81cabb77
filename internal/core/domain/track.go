package domain

import "strings"

// Feature identifies one slot of the fixed audio-feature vector.
type Feature int

// The order of these constants is the order of FeatureVector.
const (
	Danceability Feature = iota
	Energy
	Key
	Liveness
	Valence
	Loudness
	Popularity
	Tempo

	featureCount
)

var featureNames = [featureCount]string{
	"danceability",
	"energy",
	"key",
	"liveness",
	"valence",
	"loudness",
	"popularity",
	"tempo",
}

// String returns the lower-case column name of the feature.
func (f Feature) String() string {
	if f < 0 || f >= featureCount {
		return "unknown"
	}
	return featureNames[f]
}

// Features lists every feature in vector order.
func Features() []Feature {
	out := make([]Feature, featureCount)
	for i := range out {
		out[i] = Feature(i)
	}
	return out
}

// FeatureVector is the 8-dimensional numeric profile used for similarity.
type FeatureVector [featureCount]float64

// RawFeatures holds uncoerced column values as they came out of a catalog store.
type RawFeatures map[Feature]any

// CatalogRow is one reference track.
// Index is the row's position in the catalog it was loaded from and is the
// only identity a row has; duplicates by name and artist are allowed.
type CatalogRow struct {
	Index      int
	TrackName  string
	ArtistName string
	Features   FeatureVector
	Missing    []Feature
}

// NewCatalogRow coerces every raw feature once. Components that fail
// coercion are recorded in Missing and left as zero in Features.
func NewCatalogRow(index int, trackName, artistName string, raw RawFeatures) CatalogRow {
	row := CatalogRow{
		Index:      index,
		TrackName:  trackName,
		ArtistName: artistName,
	}
	for _, f := range Features() {
		v, ok := Coerce(raw[f])
		if !ok {
			row.Missing = append(row.Missing, f)
			continue
		}
		row.Features[f] = v
	}
	return row
}

// HasFeatures reports whether every component of the feature vector is numeric.
func (r CatalogRow) HasFeatures() bool {
	return len(r.Missing) == 0
}

// MissingNames returns the names of the missing features, for logging.
func (r CatalogRow) MissingNames() string {
	names := make([]string, 0, len(r.Missing))
	for _, f := range r.Missing {
		names = append(names, f.String())
	}
	return strings.Join(names, ",")
}

// Raw returns the row's features in the form NewCatalogRow accepts, with
// missing components as nil. It is used when a catalog is copied between stores.
func (r CatalogRow) Raw() RawFeatures {
	raw := make(RawFeatures, featureCount)
	for _, f := range Features() {
		raw[f] = r.Features[f]
	}
	for _, f := range r.Missing {
		raw[f] = nil
	}
	return raw
}

// Catalog is an ordered, read-only snapshot of reference tracks.
type Catalog []CatalogRow
