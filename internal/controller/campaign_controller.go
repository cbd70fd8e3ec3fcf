// internal/controller/campaign_controller.go
package controller

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/service"
)

type CampaignController struct {
	Control *service.CampaignControlService
	// Queue, when set, receives a dispatch request after a launch or resume
	// so the worker does not wait for its next scheduled pass.
	Queue queue.Queue
}

func (c *CampaignController) requestDispatch(campaign *model.Campaign) {
	if c.Queue == nil || campaign == nil || campaign.Status != model.CampaignRunning {
		return
	}
	if err := c.Queue.Publish(queue.TopicDispatchRequests, queue.DispatchRequest{WorkspaceID: campaign.WorkspaceID}); err != nil {
		log.Println("⚠️ Failed to request dispatch:", err)
	}
}

func (c *CampaignController) Launch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := c.Control.LaunchCampaign(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("🚀 Campaign %s launched with %d emails scheduled", id, res.EmailsScheduled)
	c.requestDispatch(res.Campaign)
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Action          string `json:"action" validate:"required,oneof=pause resume stop"`
		AcknowledgeRisk bool   `json:"acknowledgeRisk"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.Control.UpdateCampaignStatus(r.Context(), id, body.Action, body.AcknowledgeRisk)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Action == "resume" {
		c.requestDispatch(res.Campaign)
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) UpdateProspectStatus(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	prospectID := chi.URLParam(r, "prospectId")

	var body struct {
		Action string `json:"action" validate:"required,oneof=pause resume stop"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	res, err := c.Control.UpdateProspectStatus(r.Context(), campaignID, prospectID, body.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
