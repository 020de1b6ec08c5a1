package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultMaxAttempts   = 5
)

// Sweeper drains a Ledger, retrying each deletion through the storage gateway.
type Sweeper struct {
	ledger      Ledger
	gateway     *simplemedia.Gateway
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithInterval sets how often Run sweeps
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAttempts sets how many failed deletions an orphan survives
func WithMaxAttempts(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSweeper creates a Sweeper
func NewSweeper(ledger Ledger, gateway *simplemedia.Gateway, opts ...Option) *Sweeper {
	s := &Sweeper{
		ledger:      ledger,
		gateway:     gateway,
		interval:    DefaultSweepInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one sweep
type Result struct {
	Deleted   int
	Requeued  int
	Abandoned int
}

// RunOnce processes at most the orphans queued when it starts, so entries
// requeued during the sweep wait for the next one. A claim that cannot be
// acknowledged or requeued stays in flight until Restore.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	pending, err := s.ledger.Len(ctx)
	if err != nil {
		return res, err
	}

	for i := int64(0); i < pending; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		claim, err := s.ledger.Claim(ctx)
		if err != nil {
			return res, err
		}
		if claim == nil {
			break
		}
		orphan := &claim.Orphan

		err = s.gateway.Delete(ctx, orphan.Key)
		if err == nil {
			res.Deleted++
			s.logger.Info("Orphan removed", "key", orphan.Key, "content_id", orphan.ContentID, "attempts", orphan.Attempts+1)
			if err := s.ledger.Ack(ctx, claim); err != nil {
				return res, err
			}
			continue
		}

		orphan.Attempts++
		orphan.Error = err.Error()
		if orphan.Attempts >= s.maxAttempts {
			res.Abandoned++
			s.logger.Error("Giving up on orphaned object",
				"key", orphan.Key,
				"content_id", orphan.ContentID,
				"reason", orphan.Reason,
				"attempts", orphan.Attempts,
				"error", err,
			)
			if err := s.ledger.Ack(ctx, claim); err != nil {
				return res, err
			}
			continue
		}
		if err := s.ledger.Requeue(ctx, claim); err != nil {
			s.logger.Error("Failed to requeue orphaned object",
				"key", orphan.Key,
				"content_id", orphan.ContentID,
				"reason", orphan.Reason,
				"attempts", orphan.Attempts,
				"error", err,
			)
			return res, err
		}
		res.Requeued++
	}
	return res, nil
}

// Restore returns orphans left in flight by an interrupted sweep to the queue
func (s *Sweeper) Restore(ctx context.Context) (int64, error) {
	n, err := s.ledger.Restore(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Info("Restored in-flight orphans", "count", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Orphan sweeper started", "interval", s.interval, "max_attempts", s.maxAttempts)
	if _, err := s.Restore(ctx); err != nil {
		s.logger.Warn("Failed to restore in-flight orphans", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Orphan sweep failed", "error", err)
			}
			if res.Deleted+res.Requeued+res.Abandoned > 0 {
				s.logger.Info("Orphan sweep finished", "deleted", res.Deleted, "requeued", res.Requeued, "abandoned", res.Abandoned)
			}
		}
	}
}
