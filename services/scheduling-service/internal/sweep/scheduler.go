package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// Scheduler fires the sweeper once a day at a fixed wall-clock time.
type Scheduler struct {
	sweeper *Sweeper
	at      model.Minute
	loc     *time.Location
	clock   clock.Clock
	logger  *slog.Logger
}

func NewScheduler(sweeper *Sweeper, at model.Minute, loc *time.Location, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{sweeper: sweeper, at: at, loc: loc, clock: clk, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var prev time.Time
	for {
		now := s.clock.Now()
		next := NextFiring(now, s.at, s.loc)
		if !next.After(prev) {
			next = NextFiring(prev, s.at, s.loc)
		}
		s.logger.Info("next sweep scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		prev = next

		rep, err := s.sweeper.Run(ctx)
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			s.logger.Warn("sweep skipped, previous run still active")
		case err != nil:
			s.logger.Error("sweep run failed", "err", err, "processed", rep.Processed, "failed", len(rep.Failed))
		}
	}
}

// NextFiring is the first instant strictly after now at which the wall
// clock in loc reads at.
func NextFiring(now time.Time, at model.Minute, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, int(at)/60, int(at)%60, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, int(at)/60, int(at)%60, 0, 0, loc)
	}
	return next
}
