package archive

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// SweepActor is recorded as the moving actor for scheduled sweeps.
const SweepActor = "scheduled-sweep"

// Sweeper triggers the daily archival sweep at a fixed local hour. All
// terminal orders last updated before that day's boundary are moved to
// history through the same Service path as manual archival.
type Sweeper struct {
	svc  *Service
	hour int
	now  func() time.Time
}

// NewSweeper creates a Sweeper firing daily at the given local hour (0-23).
func NewSweeper(svc *Service, hour int) *Sweeper {
	if hour < 0 || hour > 23 {
		hour = 23
	}
	return &Sweeper{svc: svc, hour: hour, now: time.Now}
}

// Run blocks until ctx is cancelled, sweeping once per daily boundary.
func (s *Sweeper) Run(ctx context.Context) {
	lg := zctx.From(ctx)
	for {
		boundary := s.nextBoundary()
		timer := time.NewTimer(time.Until(boundary))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := s.svc.SweepBefore(ctx, boundary, SweepActor)
		if err != nil {
			lg.Warn("archival sweep failed", zap.Error(err))
			continue
		}
		lg.Info("archival sweep completed",
			zap.Int("moved", result.MovedCount),
			zap.Int("skipped", len(result.Skipped)),
			zap.Int("failed", len(result.Failed)),
		)
	}
}

// nextBoundary returns the next occurrence of the configured hour, strictly
// in the future.
func (s *Sweeper) nextBoundary() time.Time {
	now := s.now()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !boundary.After(now) {
		boundary = boundary.AddDate(0, 0, 1)
	}
	return boundary
}
