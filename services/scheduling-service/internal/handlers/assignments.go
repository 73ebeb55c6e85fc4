package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
)

type assignRequest struct {
	ResourceID string `json:"resource_id" validate:"required,max=128"`
}

func (a *API) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, "handlers.Assign", &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	asg, err := a.assign.Assign(r.Context(), r.PathValue("subject_id"), req.ResourceID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewAssignment(asg))
}

func (a *API) ListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := a.assign.List(r.Context(), r.PathValue("subject_id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	out := make([]assignmentView, 0, len(list))
	for _, asg := range list {
		out = append(out, viewAssignment(asg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (a *API) ActiveAssignment(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("subject_id")
	asg, ok, err := a.assign.Active(r.Context(), subjectID)
	if err == nil && !ok {
		err = apperr.NotFound("handlers.ActiveAssignment", "subject %s has no active assignment", subjectID)
	}
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAssignment(asg))
}

func (a *API) GetAssignment(w http.ResponseWriter, r *http.Request) {
	asg, err := a.assign.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAssignment(asg))
}

func (a *API) Unassign(w http.ResponseWriter, r *http.Request) {
	asg, err := a.assign.Unassign(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAssignment(asg))
}
