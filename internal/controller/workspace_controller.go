package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type WorkspaceController struct {
	Guardrail *service.GuardrailService
	Settings  *service.SendingSettingsService
}

// CanSend is the read-only pre-send check used to gate the launch action.
func (c *WorkspaceController) CanSend(w http.ResponseWriter, r *http.Request) {
	res, err := c.Guardrail.CheckCanSend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *WorkspaceController) GetSendingSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.Settings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (c *WorkspaceController) UpsertSendingSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.SendingSettings
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, err)
		return
	}
	settings.WorkspaceID = chi.URLParam(r, "id")

	saved, err := c.Settings.Upsert(r.Context(), &settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
