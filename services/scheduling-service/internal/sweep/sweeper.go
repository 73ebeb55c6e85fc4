// Package sweep moves overdue pending appointments to absent. A run is
// idempotent: appointments already out of pending are skipped, so a run
// interrupted by shutdown is completed by the next one.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAlreadyRunning is returned when another run holds the sweep.
var ErrAlreadyRunning = errors.New("sweep already running")

type Store interface {
	ListPendingBefore(ctx context.Context, before model.Date, afterID string, limit int) ([]model.Appointment, error)
	GetTemplate(ctx context.Context, ownerID string) (model.Template, error)
}

type Transitioner interface {
	SweepAbsent(ctx context.Context, id string, firedAt time.Time) (model.Appointment, error)
}

// Lease guards the sweep across processes; redisx.Lock satisfies it.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

type Failure struct {
	AppointmentID string `json:"appointment_id"`
	Err           string `json:"error"`
}

type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     []Failure `json:"failed"`
}

type Config struct {
	BatchSize int
	// DefaultZone decides "today" for owners without a usable template.
	DefaultZone *time.Location
	Lease       Lease
}

type Sweeper struct {
	store     Store
	appts     Transitioner
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	batchSize int
	zone      *time.Location
	lease     Lease
	mu        sync.Mutex
}

func NewSweeper(store Store, appts Transitioner, clk clock.Clock, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.DefaultZone == nil {
		cfg.DefaultZone = time.UTC
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Sweeper{
		store:     store,
		appts:     appts,
		clock:     clk,
		logger:    logger,
		tracer:    otelx.Tracer("sweep"),
		batchSize: cfg.BatchSize,
		zone:      cfg.DefaultZone,
		lease:     cfg.Lease,
	}
}

// Run performs one sweep. It never runs concurrently with itself: an
// overlapping call returns ErrAlreadyRunning. Per-item failures are collected
// in the report; the error is reserved for failures of the run itself.
func (s *Sweeper) Run(ctx context.Context) (rep Report, err error) {
	if !s.mu.TryLock() {
		return Report{}, ErrAlreadyRunning
	}
	defer s.mu.Unlock()

	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			return Report{}, ErrAlreadyRunning
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("sweep lease release failed", "err", err)
			}
		}()
	}

	firedAt := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "sweep.Run", trace.WithAttributes(attribute.String("fired_at", firedAt.UTC().Format(time.RFC3339))))
	defer func() {
		span.SetAttributes(
			attribute.Int("processed", rep.Processed),
			attribute.Int("skipped", rep.Skipped),
			attribute.Int("failed", len(rep.Failed)),
		)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	rep = Report{StartedAt: firedAt.UTC(), Failed: []Failure{}}
	// No zone is more than a day ahead of UTC, so nothing overdue anywhere is
	// dated on or after UTC tomorrow.
	cutoff := model.DateOf(firedAt.UTC()).AddDays(1)
	zones := map[string]*time.Location{}

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			rep.FinishedAt = s.clock.Now().UTC()
			return rep, err
		}
		batch, err := s.store.ListPendingBefore(ctx, cutoff, afterID, s.batchSize)
		if err != nil {
			rep.FinishedAt = s.clock.Now().UTC()
			return rep, fmt.Errorf("list sweep candidates: %w", err)
		}
		for _, a := range batch {
			afterID = a.ID
			if !a.Date.Before(model.Today(firedAt, s.zoneFor(ctx, zones, a.OwnerID))) {
				continue
			}
			s.sweepOne(ctx, &rep, a.ID, firedAt)
		}
		if len(batch) < s.batchSize {
			break
		}
	}

	rep.FinishedAt = s.clock.Now().UTC()
	s.logger.Info("sweep finished",
		"processed", rep.Processed,
		"skipped", rep.Skipped,
		"failed", len(rep.Failed),
		"duration_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
	)
	return rep, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, rep *Report, id string, firedAt time.Time) {
	_, err := s.appts.SweepAbsent(ctx, id, firedAt)
	switch {
	case err == nil:
		rep.Processed++
	case apperr.Is(err, apperr.KindInvalidTransition), apperr.Is(err, apperr.KindNotFound):
		// Confirmed or cancelled since it was listed.
		rep.Skipped++
	default:
		rep.Failed = append(rep.Failed, Failure{AppointmentID: id, Err: err.Error()})
		s.logger.Warn("sweep item failed", "appointment_id", id, "err", err)
	}
}

func (s *Sweeper) zoneFor(ctx context.Context, cache map[string]*time.Location, ownerID string) *time.Location {
	if loc, ok := cache[ownerID]; ok {
		return loc
	}
	loc := s.zone
	tpl, err := s.store.GetTemplate(ctx, ownerID)
	switch {
	case err == nil:
		if l, lerr := tpl.Location(); lerr == nil {
			loc = l
		} else {
			s.logger.Warn("owner template has unusable zone", "owner_id", ownerID, "err", lerr)
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn("owner template lookup failed", "owner_id", ownerID, "err", err)
	}
	cache[ownerID] = loc
	return loc
}
