// Package handlers is the JSON-over-HTTP surface of the scheduling service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/assignment"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/sweep"
)

// SweepRunner is satisfied by *sweep.Sweeper.
type SweepRunner interface {
	Run(ctx context.Context) (sweep.Report, error)
}

type Deps struct {
	Scheduling  *scheduling.Service
	Assignments *assignment.Service
	Sweeper     SweepRunner
	Verifier    TokenVerifier
	// PublicLimiter throttles the unauthenticated booking and cancel
	// endpoints; nil disables it.
	PublicLimiter httpx.Limiter
	Logger        *slog.Logger
}

type API struct {
	appts   *scheduling.Service
	assign  *assignment.Service
	sweeper SweepRunner
	logger  *slog.Logger
}

// Routes registers every /api/v1 route on mux.
func Routes(mux *http.ServeMux, d Deps) {
	a := &API{appts: d.Scheduling, assign: d.Assignments, sweeper: d.Sweeper, logger: d.Logger}

	public := func(h http.HandlerFunc) http.Handler {
		if d.PublicLimiter == nil {
			return h
		}
		return d.PublicLimiter.Middleware()(h)
	}
	authed := func(h http.HandlerFunc) http.Handler { return authenticate(d.Verifier, h) }

	mux.HandleFunc("GET /api/v1/public/availability", a.Availability)
	mux.Handle("POST /api/v1/public/appointments", public(a.Book))
	mux.Handle("POST /api/v1/public/appointments/cancel", public(a.CancelWithToken))

	mux.Handle("GET /api/v1/appointments", authed(a.ListAppointments))
	mux.Handle("GET /api/v1/appointments/{id}", authed(a.GetAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/reschedule", authed(a.Reschedule))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", authed(a.Cancel))
	mux.Handle("POST /api/v1/appointments/{id}/confirm", authed(a.Confirm))
	mux.Handle("POST /api/v1/appointments/{id}/absent", authed(a.MarkAbsent))

	mux.Handle("GET /api/v1/templates/{owner_id}", authed(a.GetTemplate))
	mux.Handle("PUT /api/v1/templates/{owner_id}", authed(a.PutTemplate))

	mux.Handle("POST /api/v1/subjects/{subject_id}/assignments", authed(a.Assign))
	mux.Handle("GET /api/v1/subjects/{subject_id}/assignments", authed(a.ListAssignments))
	mux.Handle("GET /api/v1/subjects/{subject_id}/assignments/active", authed(a.ActiveAssignment))
	mux.Handle("GET /api/v1/assignments/{id}", authed(a.GetAssignment))
	mux.Handle("POST /api/v1/assignments/{id}/unassign", authed(a.Unassign))

	mux.Handle("POST /api/v1/admin/sweep", authed(a.RunSweep))
}
