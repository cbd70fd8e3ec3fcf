package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

var signalCascades = map[string]string{
	"complaint":   service.CascadeComplaint,
	"unsubscribe": service.CascadeUnsubscribe,
	"bounce":      service.CascadeBounce,
}

// SignalController receives prospect signals from outside the mailbox sync,
// such as provider complaint hooks and external reply classifiers.
type SignalController struct {
	Prospects      repository.ProspectRepositoryInterface
	Cascade        *service.CascadeService
	Classification *service.ClassificationService
}

func (c *SignalController) ProspectSignal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type" validate:"required,oneof=complaint unsubscribe bounce"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	prospect, err := c.Prospects.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := c.Cascade.Cascade(r.Context(), service.CascadeTarget{
		WorkspaceID: prospect.WorkspaceID,
		ProspectID:  prospect.ID,
	}, signalCascades[body.Type])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (c *SignalController) ClassifyMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Classification string `json:"classification" validate:"required"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	summary, err := c.Classification.Classify(r.Context(), chi.URLParam(r, "id"), body.Classification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messageId":      chi.URLParam(r, "id"),
		"classification": body.Classification,
		"cascade":        summary,
	})
}
