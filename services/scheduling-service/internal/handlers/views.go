package handlers

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

type appointmentView struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	SubjectID         string            `json:"subject_id,omitempty"`
	SubjectContact    string            `json:"subject_contact,omitempty"`
	Date              model.Date        `json:"date"`
	Time              model.Minute      `json:"time"`
	Status            model.Status      `json:"status"`
	Reason            string            `json:"reason,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Outcome           string            `json:"outcome,omitempty"`
	Audit             []model.AuditNote `json:"audit"`
	RescheduledFrom   string            `json:"rescheduled_from,omitempty"`
	RescheduledTo     string            `json:"rescheduled_to,omitempty"`
	CancellationToken string            `json:"cancellation_token,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func viewAppointment(a model.Appointment) appointmentView {
	audit := a.Audit
	if audit == nil {
		audit = []model.AuditNote{}
	}
	return appointmentView{
		ID:                a.ID,
		OwnerID:           a.OwnerID,
		SubjectID:         a.SubjectID,
		SubjectContact:    a.SubjectContact,
		Date:              a.Date,
		Time:              a.Start,
		Status:            a.Status,
		Reason:            a.Reason,
		Notes:             a.Notes,
		Outcome:           a.Outcome,
		Audit:             audit,
		RescheduledFrom:   a.RescheduledFrom,
		RescheduledTo:     a.RescheduledTo,
		CancellationToken: a.CancellationToken,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func viewAppointments(list []model.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(list))
	for _, a := range list {
		out = append(out, viewAppointment(a))
	}
	return out
}

type templateView struct {
	OwnerID     string             `json:"owner_id"`
	Timezone    string             `json:"timezone"`
	SlotMinutes int                `json:"slot_minutes"`
	Ranges      model.WeeklyRanges `json:"ranges"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func viewTemplate(t model.Template) templateView {
	ranges := t.Ranges
	if ranges == nil {
		ranges = model.WeeklyRanges{}
	}
	return templateView{
		OwnerID:     t.OwnerID,
		Timezone:    t.Timezone,
		SlotMinutes: t.SlotMinutes,
		Ranges:      ranges,
		UpdatedAt:   t.UpdatedAt,
	}
}

type assignmentView struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	ResourceID    string     `json:"resource_id"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func viewAssignment(a model.Assignment) assignmentView {
	return assignmentView{
		ID:            a.ID,
		SubjectID:     a.SubjectID,
		ResourceID:    a.ResourceID,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
		DeactivatedAt: a.DeactivatedAt,
	}
}
