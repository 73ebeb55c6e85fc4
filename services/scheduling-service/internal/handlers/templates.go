package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

type templateRequest struct {
	Timezone    string             `json:"timezone" validate:"required"`
	SlotMinutes int                `json:"slot_minutes" validate:"required,min=5,max=480"`
	Ranges      model.WeeklyRanges `json:"ranges"`
}

func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	tpl, err := a.appts.GetTemplate(r.Context(), actor, r.PathValue("owner_id"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTemplate(tpl))
}

func (a *API) PutTemplate(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	var req templateRequest
	if err := decode(r, "handlers.PutTemplate", &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	tpl, err := a.appts.PutTemplate(r.Context(), actor, model.Template{
		OwnerID:     r.PathValue("owner_id"),
		Timezone:    req.Timezone,
		SlotMinutes: req.SlotMinutes,
		Ranges:      req.Ranges,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTemplate(tpl))
}
