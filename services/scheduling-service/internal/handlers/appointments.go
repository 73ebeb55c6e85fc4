package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/scheduling"
)

type availabilityQuery struct {
	OwnerID string `query:"owner_id" validate:"required"`
	Date    string `query:"date" validate:"required,datetime=2006-01-02"`
}

type availabilityResponse struct {
	OwnerID string         `json:"owner_id"`
	Date    model.Date     `json:"date"`
	Slots   []model.Minute `json:"slots"`
}

func (a *API) Availability(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Availability"
	q := availabilityQuery{
		OwnerID: r.URL.Query().Get("owner_id"),
		Date:    r.URL.Query().Get("date"),
	}
	if err := check(op, &q); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	date, err := model.ParseDate(q.Date)
	if err != nil {
		writeError(w, r, a.logger, apperr.Validation(op, "%v", err))
		return
	}
	slots, err := a.appts.GetAvailability(r.Context(), q.OwnerID, date)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if slots == nil {
		slots = []model.Minute{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{OwnerID: q.OwnerID, Date: date, Slots: slots})
}

type bookRequest struct {
	OwnerID        string `json:"owner_id" validate:"required,max=64"`
	SubjectID      string `json:"subject_id" validate:"required_without=SubjectContact,max=64"`
	SubjectContact string `json:"subject_contact" validate:"max=320"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string `json:"time" validate:"required,datetime=15:04"`
	Reason         string `json:"reason" validate:"max=2000"`
	Notes          string `json:"notes" validate:"max=2000"`
}

// slotOf parses a validated date and time pair.
func slotOf(op, d, t string) (model.Date, model.Minute, error) {
	date, err := model.ParseDate(d)
	if err != nil {
		return model.Date{}, 0, apperr.Validation(op, "%v", err)
	}
	start, err := model.ParseMinute(t)
	if err != nil {
		return model.Date{}, 0, apperr.Validation(op, "%v", err)
	}
	return date, start, nil
}

func (a *API) Book(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Book"
	var req bookRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	date, start, err := slotOf(op, req.Date, req.Time)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	appt, err := a.appts.Book(r.Context(), scheduling.BookRequest{
		OwnerID:        req.OwnerID,
		SubjectID:      req.SubjectID,
		SubjectContact: req.SubjectContact,
		Date:           date,
		Start:          start,
		Reason:         req.Reason,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewAppointment(appt))
}

type tokenCancelRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Token         string `json:"token" validate:"required"`
	Reason        string `json:"reason" validate:"max=2000"`
}

func (a *API) CancelWithToken(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.CancelWithToken"
	var req tokenCancelRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	appt, err := a.appts.Cancel(r.Context(), req.AppointmentID, scheduling.Credential{Token: req.Token}, req.Reason)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     appt.ID,
		"status": appt.Status,
	})
}

func (a *API) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	appt, err := a.appts.GetAppointment(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAppointment(appt))
}

// ListAppointments serves the caller's agenda for ?date=, another owner's
// with &owner_id= (admin), or a subject's history with ?subject_id= (admin).
func (a *API) ListAppointments(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ListAppointments"
	actor, _ := actorFrom(r.Context())
	q := r.URL.Query()

	var (
		list []model.Appointment
		err  error
	)
	if subjectID := q.Get("subject_id"); subjectID != "" {
		list, err = a.appts.ListBySubject(r.Context(), actor, subjectID)
	} else {
		var date model.Date
		date, err = model.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, r, a.logger, apperr.Validation(op, "date or subject_id is required: %v", err))
			return
		}
		ownerID := q.Get("owner_id")
		if ownerID == "" {
			ownerID = actor.ID
		}
		list, err = a.appts.ListAgenda(r.Context(), actor, ownerID, date)
	}
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": viewAppointments(list)})
}

type rescheduleRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,datetime=15:04"`
	Reason string `json:"reason" validate:"max=2000"`
}

func (a *API) Reschedule(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Reschedule"
	actor, _ := actorFrom(r.Context())
	var req rescheduleRequest
	if err := decode(r, op, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	date, start, err := slotOf(op, req.Date, req.Time)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	moved, err := a.appts.Reschedule(r.Context(), scheduling.RescheduleRequest{
		AppointmentID: r.PathValue("id"),
		Actor:         actor,
		Date:          date,
		Start:         start,
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAppointment(moved))
}

type noteRequest struct {
	Reason  string `json:"reason" validate:"max=2000"`
	Outcome string `json:"outcome" validate:"max=2000"`
	Notes   string `json:"notes" validate:"max=2000"`
}

func (a *API) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	var req noteRequest
	if err := decode(r, "handlers.Cancel", &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	appt, err := a.appts.Cancel(r.Context(), r.PathValue("id"), scheduling.Credential{Actor: &actor}, req.Reason)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAppointment(appt))
}

func (a *API) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	var req noteRequest
	if err := decode(r, "handlers.Confirm", &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	appt, err := a.appts.ConfirmAttendance(r.Context(), r.PathValue("id"), actor, req.Outcome)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAppointment(appt))
}

func (a *API) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	var req noteRequest
	if err := decode(r, "handlers.MarkAbsent", &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	appt, err := a.appts.MarkAbsent(r.Context(), r.PathValue("id"), actor, req.Notes)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAppointment(appt))
}
