package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/metrics"
)

// ErrMissingPlaylistID is returned when a run has tracks to write but no target playlist.
var ErrMissingPlaylistID = errors.New("service: missing playlist id")

// DefaultRecentLimit matches the page size of the recently-played endpoint.
const DefaultRecentLimit = 20

// finishTimeout bounds notification and report persistence after a run ends.
const finishTimeout = 10 * time.Second

// Options configures a reconcile run.
type Options struct {
	PlaylistID  string
	RecentLimit int
	Recommend   RecommendOptions
}

// Orchestrator runs the reconcile loop: recent plays, catalog match,
// recommendations, ID resolution, playlist rewrite and notification.
type Orchestrator struct {
	history   ports.ListeningHistory
	catalog   ports.CatalogSource
	resolver  ports.TrackResolver
	playlists ports.PlaylistWriter
	notifier  ports.Notifier
	runs      ports.RunRepository
	opts      Options

	now   func() time.Time
	newID func() string
}

// NewOrchestrator constructs an Orchestrator. notifier and runs may be nil.
func NewOrchestrator(
	history ports.ListeningHistory,
	catalog ports.CatalogSource,
	resolver ports.TrackResolver,
	playlists ports.PlaylistWriter,
	notifier ports.Notifier,
	runs ports.RunRepository,
	opts Options,
) *Orchestrator {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	return &Orchestrator{
		history:   history,
		catalog:   catalog,
		resolver:  resolver,
		playlists: playlists,
		notifier:  notifier,
		runs:      runs,
		opts:      opts,
		now:       time.Now,
		newID:     logging.NewRunID,
	}
}

// Run executes one reconcile run. Empty intermediate results end the run
// with a distinct Outcome and a nil error; only collaborator failures and a
// missing playlist ID return an error.
func (o *Orchestrator) Run(ctx context.Context) (domain.RunReport, error) {
	return o.RunWithID(ctx, o.newID())
}

// RunWithID is Run with a caller-chosen run ID, so a queued job can be looked up later.
func (o *Orchestrator) RunWithID(ctx context.Context, id string) (domain.RunReport, error) {
	report := domain.RunReport{ID: id, StartedAt: o.now()}
	ctx = logging.ContextWithRunID(ctx, report.ID)
	log := logging.Ctx(ctx)

	log.Info().Msg("run started: fetch, match, recommend, and update playlist")

	err := o.reconcile(ctx, &report)
	if err != nil {
		report.Outcome = domain.OutcomeFailed
		report.Error = err.Error()
		log.Error().Err(err).Msg("run failed")
	}
	report.FinishedAt = o.now()

	// The report outlives the run: a canceled or timed-out run is still recorded.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if report.Outcome == domain.OutcomeUpdated && o.notifier != nil {
		if nerr := o.notifier.Notify(finishCtx, report); nerr != nil {
			report.NotifyError = nerr.Error()
			log.Warn().Err(nerr).Msg("notification failed")
		}
	}

	if o.runs != nil {
		if serr := o.runs.SaveRun(finishCtx, report); serr != nil {
			log.Warn().Err(serr).Msg("failed to save run report")
		}
	}

	metrics.RecordRun(string(report.Outcome), report.Duration())
	log.Info().
		Str("outcome", string(report.Outcome)).
		Dur("duration", report.Duration()).
		Msg("run finished")

	return report, err
}

func (o *Orchestrator) reconcile(ctx context.Context, report *domain.RunReport) error {
	log := logging.Ctx(ctx)

	// 1. Recent plays
	observations, err := o.history.RecentlyPlayed(ctx, o.opts.RecentLimit)
	if err != nil {
		return fmt.Errorf("service: failed to fetch recent plays: %w", err)
	}
	report.Observations = len(observations)
	metrics.ObservationsTotal.Add(float64(len(observations)))
	if len(observations) == 0 {
		log.Warn().Msg("no recent tracks found")
		report.Outcome = domain.OutcomeNoRecentPlays
		return nil
	}

	// 2. Catalog snapshot, reused for matching and similarity
	catalog, err := o.catalog.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to load catalog: %w", err)
	}

	// 3. Match
	matches := Match(observations, catalog)
	report.Matched = matches.Len()
	if matches.Len() == 0 {
		log.Warn().Msg("no matched tracks found")
		report.Outcome = domain.OutcomeNoMatches
		return nil
	}

	// 4. Recommend
	recs := RecommendAll(matches, catalog, o.opts.Recommend)
	report.Recommended = len(recs)
	if len(recs) == 0 {
		log.Warn().Msg("no recommendations generated")
		report.Outcome = domain.OutcomeNoRecommendations
		return nil
	}

	// 5. Resolve streaming IDs
	resolved := &domain.Playlist{}
	if err := o.resolve(ctx, recs, resolved); err != nil {
		return err
	}
	report.Resolved = len(resolved.TrackIDs)
	report.TrackIDs = resolved.TrackIDs
	if len(resolved.TrackIDs) == 0 {
		log.Warn().Msg("no valid track IDs found")
		report.Outcome = domain.OutcomeNoResolvedTracks
		return nil
	}

	playlist, err := domain.NewPlaylist(o.opts.PlaylistID)
	if err != nil {
		log.Error().Msg("missing playlist id")
		return ErrMissingPlaylistID
	}
	playlist.TrackIDs = resolved.TrackIDs

	// 6. Rewrite the playlist
	if err := o.playlists.ReplaceTracks(ctx, playlist.ID, playlist.TrackIDs); err != nil {
		return fmt.Errorf("service: failed to update playlist: %w", err)
	}
	log.Info().Int("tracks", len(playlist.TrackIDs)).Msg("updated playlist")
	report.Outcome = domain.OutcomeUpdated
	return nil
}

// resolve maps every recommended row to a track ID, in recommendation order.
// Rows without a confident match are skipped; duplicates are added once.
func (o *Orchestrator) resolve(ctx context.Context, recs []domain.Recommendation, playlist *domain.Playlist) error {
	log := logging.Ctx(ctx)
	for _, rec := range recs {
		for _, item := range rec.Items {
			id, err := o.resolver.ResolveTrackID(ctx, item.Row.TrackName, item.Row.ArtistName)
			if errors.Is(err, ports.ErrNoConfidentMatch) || (err == nil && id == "") {
				log.Warn().
					Str("track", item.Row.TrackName).
					Str("artist", item.Row.ArtistName).
					Msg("track not found on spotify")
				continue
			}
			if err != nil {
				return fmt.Errorf("service: failed to resolve track %q: %w", item.Row.TrackName, err)
			}
			if err := playlist.AddTrack(id); err != nil && !errors.Is(err, domain.ErrDuplicateTrack) {
				return fmt.Errorf("service: %w", err)
			}
		}
	}
	return nil
}
