// Package badger caches resolved track IDs in BadgerDB so repeated runs do
// not search Spotify again for the same catalog rows.
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/metrics"
)

const (
	keyPrefix = "track_id:"

	DefaultTTL     = 30 * 24 * time.Hour
	DefaultMissTTL = 24 * time.Hour
)

// Open opens a Badger database at dir, or an in-memory one when dir is empty.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: logging.With().Str("component", "badger").Logger()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger cache: open: %w", err)
	}
	return db, nil
}

// CachingResolver decorates a TrackResolver with a TTL cache. A resolved ID
// is kept for ttl. A "no confident match" answer is kept for missTTL so that
// tracks Spotify does not carry are not searched on every run.
type CachingResolver struct {
	db      *badger.DB
	next    ports.TrackResolver
	ttl     time.Duration
	missTTL time.Duration
	log     zerolog.Logger
}

var _ ports.TrackResolver = (*CachingResolver)(nil)

// NewCachingResolver wraps next. Zero TTLs fall back to the defaults; a
// negative missTTL disables negative caching.
func NewCachingResolver(db *badger.DB, next ports.TrackResolver, ttl, missTTL time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if missTTL == 0 {
		missTTL = DefaultMissTTL
	}
	return &CachingResolver{
		db:      db,
		next:    next,
		ttl:     ttl,
		missTTL: missTTL,
		log:     logging.With().Str("component", "resolver_cache").Logger(),
	}
}

func cacheKey(title, artist string) []byte {
	return []byte(keyPrefix + strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(artist)))
}

// ResolveTrackID serves from cache when it can and otherwise asks the
// wrapped resolver. Only definite answers are cached; transport errors are not.
func (r *CachingResolver) ResolveTrackID(ctx context.Context, title, artist string) (string, error) {
	key := cacheKey(title, artist)

	id, found, err := r.lookup(key)
	if err != nil {
		r.log.Warn().Err(err).Str("track", title).Msg("cache lookup failed")
	}
	metrics.RecordCacheLookup(found)
	if found {
		if id == "" {
			return "", ports.NoConfidentMatchError{Title: title, Artist: artist}
		}
		return id, nil
	}

	id, err = r.next.ResolveTrackID(ctx, title, artist)
	switch {
	case err == nil && id != "":
		r.store(key, id, r.ttl)
	case errors.Is(err, ports.ErrNoConfidentMatch) && r.missTTL > 0:
		r.store(key, "", r.missTTL)
	}
	return id, err
}

func (r *CachingResolver) lookup(key []byte) (string, bool, error) {
	var id string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *CachingResolver) store(key []byte, id string, ttl time.Duration) {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, []byte(id)).WithTTL(ttl))
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("cache store failed")
	}
}

// badgerLogger routes Badger's own logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
