// internal/handler/cron_handler.go
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/outreach-backend/internal/worker"
)

// Runner is one full worker pass.
type Runner interface {
	RunOnce(ctx context.Context) (*worker.Summary, error)
}

// CronHandler exposes the worker passes to an external scheduler. Every call
// must carry "Authorization: Bearer <secret>"; an empty secret refuses all calls.
type CronHandler struct {
	Secret   string
	Dispatch Runner
	Sync     Runner
}

func (h *CronHandler) Routes(r chi.Router) {
	r.Get("/cron/send-emails", h.SendEmails)
	r.Post("/cron/send-emails", h.SendEmails)
	r.Get("/cron/sync-inbox", h.SyncInbox)
	r.Post("/cron/sync-inbox", h.SyncInbox)
}

func (h *CronHandler) authorized(r *http.Request) bool {
	if h.Secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) == 1
}

func (h *CronHandler) SendEmails(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "send-emails", h.Dispatch)
}

func (h *CronHandler) SyncInbox(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "sync-inbox", h.Sync)
}

func (h *CronHandler) run(w http.ResponseWriter, r *http.Request, name string, runner Runner) {
	w.Header().Set("Content-Type", "application/json")
	if !h.authorized(r) {
		log.Printf("⚠️ Unauthorized cron call to %s from %s", name, r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	log.Println("📥 Cron trigger:", name)
	summary, err := runner.RunOnce(r.Context())
	if err != nil {
		log.Printf("❌ Cron %s failed: %v", name, err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"summary": summary,
	})
}
