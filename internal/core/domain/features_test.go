package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{name: "float64", in: 0.5, want: 0.5, wantOK: true},
		{name: "int64 from sqlite", in: int64(120), want: 120, wantOK: true},
		{name: "int32", in: int32(7), want: 7, wantOK: true},
		{name: "numeric string with spaces", in: " 118.2 ", want: 118.2, wantOK: true},
		{name: "bytes", in: []byte("-5.5"), want: -5.5, wantOK: true},
		{name: "json number", in: json.Number("3"), want: 3, wantOK: true},
		{name: "bool true", in: true, want: 1, wantOK: true},
		{name: "nil is missing", in: nil, wantOK: false},
		{name: "empty string is missing", in: "", wantOK: false},
		{name: "text is missing", in: "fast", wantOK: false},
		{name: "NaN is missing", in: math.NaN(), wantOK: false},
		{name: "NaN text is missing", in: "NaN", wantOK: false},
		{name: "infinity is missing", in: math.Inf(1), wantOK: false},
		{name: "unsupported type is missing", in: struct{}{}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coerce(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("value: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCatalogRow_MissingFeature(t *testing.T) {
	raw := RawFeatures{
		Danceability: 0.5, Energy: 0.6, Key: 5, Liveness: 0.1,
		Valence: 0.4, Loudness: -6.0, Popularity: 70, Tempo: "n/a",
	}
	row := NewCatalogRow(3, "Song", "Artist", raw)

	if row.HasFeatures() {
		t.Fatal("expected row with non-numeric tempo to lack features")
	}
	if len(row.Missing) != 1 || row.Missing[0] != Tempo {
		t.Fatalf("missing: got %v, want [tempo]", row.Missing)
	}
	if row.MissingNames() != "tempo" {
		t.Fatalf("missing names: got %q", row.MissingNames())
	}
	if row.Index != 3 || row.Features[Loudness] != -6.0 {
		t.Fatalf("row not populated: %+v", row)
	}
}

func TestCosine(t *testing.T) {
	v := FeatureVector{0.7, 0.8, 5, 0.12, 0.55, -5.2, 71, 118}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("self similarity: got %v, want 1.0", got)
	}

	if got := Cosine(v, FeatureVector{}); got != 0 {
		t.Fatalf("zero norm: got %v, want 0", got)
	}

	a := FeatureVector{1}
	b := FeatureVector{0, 1}
	if got := Cosine(a, b); got != 0 {
		t.Fatalf("orthogonal: got %v, want 0", got)
	}

	neg := FeatureVector{-1}
	if got := Cosine(a, neg); math.Abs(got+1.0) > 1e-9 {
		t.Fatalf("opposite: got %v, want -1", got)
	}
}

func TestFeatureOrder(t *testing.T) {
	want := []string{"danceability", "energy", "key", "liveness", "valence", "loudness", "popularity", "tempo"}
	got := Features()
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.String() != want[i] {
			t.Fatalf("feature %d: got %q, want %q", i, f.String(), want[i])
		}
	}
}

func TestCatalogRow_RawRoundTrip(t *testing.T) {
	raw := RawFeatures{
		Danceability: 0.5, Energy: 0.6, Key: 5, Liveness: 0.1,
		Valence: 0.4, Loudness: -6.0, Popularity: 70, Tempo: nil,
	}
	row := NewCatalogRow(0, "Song", "Artist", raw)
	again := NewCatalogRow(0, "Song", "Artist", row.Raw())

	if again.Features != row.Features {
		t.Fatalf("features: got %v, want %v", again.Features, row.Features)
	}
	if again.HasFeatures() || again.MissingNames() != "tempo" {
		t.Fatalf("missing marker lost: %+v", again)
	}
}
