package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	badgercache "github.com/ewilliams-labs/encore/internal/adapters/badger"
	"github.com/ewilliams-labs/encore/internal/adapters/duckdb"
	natsnotify "github.com/ewilliams-labs/encore/internal/adapters/nats"
	"github.com/ewilliams-labs/encore/internal/adapters/postgres"
	"github.com/ewilliams-labs/encore/internal/adapters/spotify"
	"github.com/ewilliams-labs/encore/internal/adapters/sqlite"
	"github.com/ewilliams-labs/encore/internal/config"
	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/core/services"
	"github.com/ewilliams-labs/encore/internal/logging"
)

// app holds the wired adapters of one process and the closers to release them.
type app struct {
	store        *sqlite.Adapter
	orchestrator *services.Orchestrator
	closers      []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func openStore(cfg *config.Config) (*sqlite.Adapter, error) {
	store, err := sqlite.NewAdapter(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// buildCatalog returns the configured catalog source. The returned closer may be nil.
func buildCatalog(ctx context.Context, cfg *config.Config, store *sqlite.Adapter) (ports.CatalogSource, func() error, error) {
	switch cfg.Catalog.Source {
	case "sqlite":
		return store, nil, nil
	case "duckdb":
		c, err := duckdb.NewCSVCatalog(cfg.Catalog.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "postgres":
		pg := cfg.Catalog.Postgres
		pool, err := postgres.NewPool(ctx, pg.ConnString())
		if err != nil {
			return nil, nil, err
		}
		closer := func() error {
			pool.Close()
			return nil
		}
		return postgres.NewCatalog(pool, pg.QualifiedTable(), pg.OrderBy), closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source: %s", cfg.Catalog.Source)
	}
}

func spotifyConfig(cfg *config.Config) spotify.Config {
	s := cfg.Spotify
	return spotify.Config{
		BaseURL:           s.BaseURL,
		TokenURL:          s.TokenURL,
		ClientID:          s.ClientID,
		ClientSecret:      s.ClientSecret,
		RefreshToken:      s.RefreshToken,
		RedirectURI:       s.RedirectURI,
		Timeout:           s.Timeout,
		MaxRetries:        s.MaxRetries,
		RetryBackoff:      s.RetryBackoff,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
		MatchThreshold:    s.MatchThreshold,
	}
}

// buildApp wires every adapter the reconcile loop needs.
func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	if err := cfg.RequireSpotify(); err != nil {
		return nil, err
	}

	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	catalog, closeCatalog, err := buildCatalog(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	if closeCatalog != nil {
		a.closers = append(a.closers, closeCatalog)
	}

	client, err := spotify.NewClient(ctx, spotifyConfig(cfg))
	if err != nil {
		return nil, err
	}

	var resolver ports.TrackResolver = client
	if cfg.Cache.Enabled {
		db, err := badgercache.Open(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		resolver = badgercache.NewCachingResolver(db, client, cfg.Cache.TTL, cfg.Cache.MissTTL)
	}

	var notifier ports.Notifier
	if cfg.Notify.Enabled {
		zl := logging.Logger()
		n, err := natsnotify.NewNotifier(natsnotify.Config{
			URL:              cfg.Notify.URL,
			Subject:          cfg.Notify.Subject,
			MaxReconnects:    cfg.Notify.MaxReconnects,
			ReconnectWait:    cfg.Notify.ReconnectWait,
			FailureThreshold: cfg.Notify.FailureThreshold,
			BreakerTimeout:   cfg.Notify.BreakerTimeout,
		}, logging.NewWatermillAdapter(&zl))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		notifier = n
	}

	a.orchestrator = services.NewOrchestrator(
		client,
		catalog,
		resolver,
		client,
		notifier,
		store,
		services.Options{
			PlaylistID:  cfg.Spotify.PlaylistID,
			RecentLimit: cfg.Recommend.RecentLimit,
			Recommend: services.RecommendOptions{
				TopN:        cfg.Recommend.TopN,
				ExcludeSelf: cfg.Recommend.ExcludeSelf,
			},
		},
	)

	logStartup(logging.Logger(), cfg)
	return a, nil
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func logStartup(log zerolog.Logger, cfg *config.Config) {
	log.Info().
		Str("catalog", cfg.Catalog.Source).
		Bool("cache", cfg.Cache.Enabled).
		Bool("notify", cfg.Notify.Enabled).
		Int("top_n", cfg.Recommend.TopN).
		Bool("exclude_self", cfg.Recommend.ExcludeSelf).
		Msg("encore wired")
}
