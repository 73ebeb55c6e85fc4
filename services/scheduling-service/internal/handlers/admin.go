package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/sweep"
)

// RunSweep triggers an out-of-band sweep. It shares the scheduler's guard, so
// a request during a running sweep gets a conflict.
func (a *API) RunSweep(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.RunSweep"
	actor, _ := actorFrom(r.Context())
	if !actor.IsAdmin() {
		writeError(w, r, a.logger, apperr.Forbidden(op, "admin only"))
		return
	}
	rep, err := a.sweeper.Run(r.Context())
	switch {
	case errors.Is(err, sweep.ErrAlreadyRunning):
		writeError(w, r, a.logger, apperr.Conflict(op, "a sweep is already running"))
		return
	case err != nil:
		writeError(w, r, a.logger, apperr.Wrap(apperr.KindTransient, op, err, "sweep interrupted"))
		return
	}
	a.logger.Info("manual sweep finished", "actor_id", actor.ID, "processed", rep.Processed, "failed", len(rep.Failed))
	writeJSON(w, http.StatusOK, rep)
}
