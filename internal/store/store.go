// Package store persists RequestState records with a TTL.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/metrics"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
)

// ErrNotFound is returned for absent and expired entries.
var ErrNotFound = reliability.ErrNotFound

// Store defines request state persistence operations.
//
// Set and Update stamp UpdatedAt and push ExpiresAt to now+TTL. Get never returns an entry whose
// ExpiresAt has passed, even before the sweep removed it. Returned states are copies.
type Store interface {
	Set(ctx context.Context, state *models.RequestState) error
	Get(ctx context.Context, id string) (*models.RequestState, error)
	// Update applies fn to a copy of the current state and stores the result unless fn fails.
	Update(ctx context.Context, id string, fn func(*models.RequestState) error) (*models.RequestState, error)
	Delete(ctx context.Context, id string) error

	// Len returns the number of stored entries, expired or not.
	Len(ctx context.Context) (int, error)
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Shutdown stops the background sweep and releases resources. It is safe to call more than once.
	Shutdown() error
}

// New creates the store selected by cfg.Backend.
func New(cfg config.StoreConfig, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemoryStore(cfg.TTL, cfg.SweepInterval, opts...), nil
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.DatabasePath, cfg.TTL, cfg.SweepInterval, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	clock  Clock
	logger *zap.Logger
}

// WithClock replaces time.Now, for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sweeper runs a Sweep every interval until stopped.
type sweeper struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type sweepTarget interface {
	Sweep(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
}

func startSweeper(interval time.Duration, logger *zap.Logger, target sweepTarget) *sweeper {
	s := &sweeper{stop: make(chan struct{}), done: make(chan struct{})}
	if interval <= 0 {
		close(s.done)
		return s
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				n, err := target.Sweep(context.Background())
				if err != nil {
					logger.Warn("request state sweep failed", zap.Error(err))
					continue
				}
				metrics.CountSwept(n)
				if live, err := target.Len(context.Background()); err == nil {
					metrics.SetStoreEntries(live)
				}
				if n > 0 {
					logger.Debug("swept expired request states", zap.Int("removed", n))
				}
			}
		}
	}()
	return s
}

// halt stops the sweep goroutine and waits for it to exit.
func (s *sweeper) halt() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func stamp(st *models.RequestState, now time.Time, ttl time.Duration) {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	st.ExpiresAt = now.Add(ttl)
}
