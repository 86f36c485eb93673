// Package ledger issues and validates short-lived meeting ids. Meetings
// are independent of signaling rooms and connections: they are durable,
// time-boxed access records with unguessable ids and secrets.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/errs"
	"github.com/mindhaven/peerlink/internal/models"
)

const (
	// DefaultTTL is the fixed meeting lifetime; not caller-configurable.
	DefaultTTL = time.Hour
	// DefaultSweepInterval bounds memory growth from abandoned meetings.
	DefaultSweepInterval = 5 * time.Minute

	idBytes     = 8
	secretBytes = 16
)

// Ledger allocates and validates meetings against a Store, enforcing
// expiry both lazily on validate and via a periodic sweep.
type Ledger struct {
	store     Store
	ttl       time.Duration
	sweep     time.Duration
	now       func() time.Time
	log       zerolog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a ledger over the given store. Zero durations select the
// defaults.
func New(store Store, ttl, sweepInterval time.Duration, log zerolog.Logger) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Ledger{
		store: store,
		ttl:   ttl,
		sweep: sweepInterval,
		now:   time.Now,
		log:   log.With().Str("component", "meeting-ledger").Logger(),
		done:  make(chan struct{}),
	}
}

// Allocate issues a fresh meeting with a random id and secret. A failure
// of the random source fails this request only.
func (l *Ledger) Allocate(ctx context.Context) (*models.Meeting, error) {
	id, err := randomHex(idBytes)
	if err != nil {
		return nil, fmt.Errorf("generate meeting id: %w", err)
	}
	secret, err := randomHex(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate meeting secret: %w", err)
	}

	now := l.now()
	m := &models.Meeting{
		ID:        id,
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.store.Put(ctx, m); err != nil {
		return nil, err
	}
	l.log.Info().Str("meeting", m.ID).Time("expiresAt", m.ExpiresAt).Msg("meeting allocated")
	return m, nil
}

// Validate checks a meeting id without extending its lifetime. An empty
// secret performs a bare link check; a wrong non-empty secret reports
// errs.ErrNotFound, the same as an absent or expired id.
func (l *Ledger) Validate(ctx context.Context, id, secret string) (*models.Meeting, error) {
	m, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Expired(l.now()) {
		// Lazy expiry: remove on sight so repeated validates stay cheap.
		if err := l.store.Delete(ctx, id); err != nil {
			l.log.Warn().Err(err).Str("meeting", id).Msg("failed to remove expired meeting")
		}
		return nil, errs.ErrNotFound
	}
	if secret != "" && secret != m.Secret {
		return nil, errs.ErrNotFound
	}
	return m, nil
}

// Start launches the background sweep. Safe to call more than once.
func (l *Ledger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run(ctx)
		l.log.Info().Dur("interval", l.sweep).Msg("meeting sweep started")
	})
}

// Stop shuts the sweep down and waits for it. Safe to call more than once.
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.log.Info().Msg("meeting sweep stopped")
	})
}

func (l *Ledger) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			removed, err := l.store.DeleteExpired(ctx, l.now())
			if err != nil {
				l.log.Warn().Err(err).Msg("meeting sweep failed")
				continue
			}
			if removed > 0 {
				l.log.Debug().Int("removed", removed).Msg("swept expired meetings")
			}
		}
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
