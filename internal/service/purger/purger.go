// Package purger periodically deletes expired refresh tokens
package purger

import (
	"context"
	"errors"
	"time"

	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/repository"
)

const defaultInterval = time.Hour

type Config struct {
	// Interval between sweeps
	// If not set than default is used
	Interval time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type Purger struct {
	interval time.Duration
	now      func() time.Time
	storage  repository.Storage
	logger   logger.Logger
}

func New(cfg Config, storage repository.Storage, l logger.Logger) (*Purger, error) {
	if storage == nil || l == nil {
		return nil, errors.New("storage and logger must not be nil")
	}

	if cfg.Interval < 0 {
		return nil, errors.New("purge interval must not be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Purger{
		interval: cfg.Interval,
		now:      cfg.Now,
		storage:  storage,
		logger:   l,
	}, nil
}

// Sweep deletes every token expired by now, revoked or not
func (p *Purger) Sweep(ctx context.Context) (int64, error) {
	return p.storage.Refresh().PurgeExpired(ctx, p.now())
}

// Run sweeps on every tick until ctx is done. Returned channel is closed when the loop stops
func (p *Purger) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	p.logger.Debug("Starting purger", "interval", p.interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Purger stopped by context")
				return

			case <-ticker.C:
				count, err := p.Sweep(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.logger.Error("Failed to purge expired tokens", "error", err)
					continue
				}
				p.logger.Info("Expired tokens purged", "count", count)
			}
		}
	}()

	return stopped
}
