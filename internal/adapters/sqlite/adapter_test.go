package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ewilliams-labs/encore/internal/core/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func fullRaw(tempo any) domain.RawFeatures {
	return domain.RawFeatures{
		domain.Danceability: 0.7, domain.Energy: 0.8, domain.Key: 5, domain.Liveness: 0.12,
		domain.Valence: 0.55, domain.Loudness: -5.2, domain.Popularity: 71, domain.Tempo: tempo,
	}
}

func TestNewAdapter_OpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "encore.db")
	if _, err := NewAdapter(path); err == nil {
		t.Fatal("expected error for a path in a missing directory")
	}
}

func TestAdapter_LoadCatalog(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, a *Adapter)
		wantRows    int
		wantMissing map[int]string
	}{
		{
			name:     "empty catalog",
			setup:    func(t *testing.T, a *Adapter) {},
			wantRows: 0,
		},
		{
			name: "round trip keeps order and missing features",
			setup: func(t *testing.T, a *Adapter) {
				catalog := domain.Catalog{
					domain.NewCatalogRow(0, "Song A", "Artist X", fullRaw(118.0)),
					domain.NewCatalogRow(1, "Broken", "Artist Z", fullRaw(nil)),
					domain.NewCatalogRow(2, "Song B", "Artist Y", fullRaw(90)),
				}
				if err := a.ReplaceCatalog(context.Background(), catalog); err != nil {
					t.Fatalf("replace catalog: %v", err)
				}
			},
			wantRows:    3,
			wantMissing: map[int]string{1: "tempo"},
		},
		{
			name: "text in a feature column is missing",
			setup: func(t *testing.T, a *Adapter) {
				_, err := a.db.Exec(`INSERT INTO catalog
					(track_name, artist_name, danceability, energy, "key", liveness, valence, loudness, popularity, tempo)
					VALUES ('Odd', 'Someone', '0.5', 0.6, 5, 0.1, 0.4, -6, 70, 'fast')`)
				if err != nil {
					t.Fatalf("insert: %v", err)
				}
			},
			wantRows:    1,
			wantMissing: map[int]string{0: "tempo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t)
			tt.setup(t, a)

			got, err := a.LoadCatalog(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantRows {
				t.Fatalf("rows: got %d, want %d", len(got), tt.wantRows)
			}
			for i, row := range got {
				if row.Index != i {
					t.Fatalf("row %d index: got %d", i, row.Index)
				}
				want, missing := tt.wantMissing[i]
				if missing != !row.HasFeatures() {
					t.Fatalf("row %d HasFeatures: got %v", i, row.HasFeatures())
				}
				if missing && row.MissingNames() != want {
					t.Fatalf("row %d missing: got %q, want %q", i, row.MissingNames(), want)
				}
			}
		})
	}
}

func TestAdapter_ReplaceCatalogOverwrites(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	first := domain.Catalog{domain.NewCatalogRow(0, "Old", "Artist", fullRaw(100))}
	second := domain.Catalog{
		domain.NewCatalogRow(0, "New 1", "Artist", fullRaw(100)),
		domain.NewCatalogRow(1, "New 2", "Artist", fullRaw(101)),
	}
	if err := a.ReplaceCatalog(ctx, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := a.ReplaceCatalog(ctx, second); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := a.LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].TrackName != "New 1" || got[1].TrackName != "New 2" {
		t.Fatalf("catalog: got %+v", got)
	}
	if got[1].Features[domain.Tempo] != 101 {
		t.Fatalf("tempo: got %v", got[1].Features[domain.Tempo])
	}
}

func TestAdapter_Runs(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	report := func(id string, offset time.Duration, outcome domain.Outcome) domain.RunReport {
		return domain.RunReport{
			ID:           id,
			StartedAt:    base.Add(offset),
			FinishedAt:   base.Add(offset + 2*time.Second),
			Outcome:      outcome,
			Observations: 20,
			Matched:      3,
			Recommended:  3,
			Resolved:     2,
			TrackIDs:     []string{"a", "b"},
		}
	}

	tests := []struct {
		name    string
		setup   func(t *testing.T, a *Adapter)
		id      string
		want    domain.RunReport
		wantErr error
	}{
		{
			name:    "not found",
			setup:   func(t *testing.T, a *Adapter) {},
			id:      "missing",
			wantErr: domain.ErrNotFound,
		},
		{
			name: "round trip",
			setup: func(t *testing.T, a *Adapter) {
				if err := a.SaveRun(context.Background(), report("r1", 0, domain.OutcomeUpdated)); err != nil {
					t.Fatalf("save: %v", err)
				}
			},
			id:   "r1",
			want: report("r1", 0, domain.OutcomeUpdated),
		},
		{
			name: "queued run has no finish time",
			setup: func(t *testing.T, a *Adapter) {
				queued := domain.RunReport{ID: "q1", StartedAt: base, Outcome: domain.OutcomeQueued}
				if err := a.SaveRun(context.Background(), queued); err != nil {
					t.Fatalf("save: %v", err)
				}
			},
			id:   "q1",
			want: domain.RunReport{ID: "q1", StartedAt: base, Outcome: domain.OutcomeQueued},
		},
		{
			name: "upsert replaces",
			setup: func(t *testing.T, a *Adapter) {
				ctx := context.Background()
				if err := a.SaveRun(ctx, report("r1", 0, domain.OutcomeUpdated)); err != nil {
					t.Fatalf("save: %v", err)
				}
				failed := report("r1", 0, domain.OutcomeFailed)
				failed.TrackIDs = nil
				failed.Error = "boom"
				failed.NotifyError = "nats down"
				if err := a.SaveRun(ctx, failed); err != nil {
					t.Fatalf("save: %v", err)
				}
			},
			id: "r1",
			want: func() domain.RunReport {
				r := report("r1", 0, domain.OutcomeFailed)
				r.TrackIDs = nil
				r.Error = "boom"
				r.NotifyError = "nats down"
				return r
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t)
			tt.setup(t, a)

			got, err := a.GetRun(context.Background(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("report: got %+v, want %+v", got, tt.want)
			}
		})
	}

	t.Run("list newest first with limit", func(t *testing.T) {
		a := newTestAdapter(t)
		ctx := context.Background()
		for i, id := range []string{"r1", "r2", "r3"} {
			if err := a.SaveRun(ctx, report(id, time.Duration(i)*time.Minute, domain.OutcomeUpdated)); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		got, err := a.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].ID != "r3" || got[1].ID != "r2" {
			t.Fatalf("list: got %+v", got)
		}
	})
}
