// Package app assembles the stores, services and workers from a Config.
// Both the HTTP server and the background worker are built from it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/gmail"
	"github.com/unclebandit/outreach-backend/internal/handler"
	"github.com/unclebandit/outreach-backend/internal/lock"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/ratelimit"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduling"
	"github.com/unclebandit/outreach-backend/internal/service"
	"github.com/unclebandit/outreach-backend/internal/worker"
)

type App struct {
	Config *config.Config

	DB     *sql.DB
	Redis  *redis.Client
	Queue  queue.Queue
	Repos  *repository.Repositories
	Memory *repository.MemoryStore

	Gateway gmail.Gateway

	Evaluator      *scheduling.Evaluator
	Guardrail      *service.GuardrailService
	Settings       *service.SendingSettingsService
	Control        *service.CampaignControlService
	Cascade        *service.CascadeService
	Classification *service.ClassificationService
	Notifier       *service.Notifier

	Dispatcher *worker.Dispatcher
	Sync       *worker.InboxSync

	closers []func() error
}

// Option overrides a default collaborator, mostly for tests.
type Option func(*App)

func WithGateway(g gmail.Gateway) Option { return func(a *App) { a.Gateway = g } }

func WithQueue(q queue.Queue) Option { return func(a *App) { a.Queue = q } }

func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openBackends(); err != nil {
		a.Close()
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *App) openStore() error {
	if a.Config.Store == config.StoreMemory {
		log.Println("⚠️ Using in-memory store, data is lost on restart")
		a.Memory = repository.NewMemoryStore()
		a.Repos = a.Memory.Repositories()
		return nil
	}
	conn, err := db.Open(a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	a.Repos = repository.NewPostgresRepositories(conn)
	return nil
}

func (a *App) openBackends() error {
	cfg := a.Config
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		log.Println("✅ Connected to redis")
	}

	if a.Queue == nil {
		if cfg.AMQPURL != "" {
			q, err := queue.NewAMQPQueue(cfg.AMQPURL)
			if err != nil {
				return err
			}
			a.Queue = q
			a.closers = append(a.closers, q.Close)
			log.Println("✅ Connected to RabbitMQ")
		} else {
			a.Queue = queue.NewInMemoryQueue()
		}
	}

	if a.Gateway == nil {
		if cfg.GatewayURL != "" {
			a.Gateway = gmail.NewClient(cfg.GatewayURL, cfg.GatewayToken)
		} else {
			log.Println("⚠️ GMAIL_GATEWAY_URL not set, emails are logged instead of sent")
			a.Gateway = gmail.NewDryRunClient()
		}
	}
	return nil
}

func (a *App) wire() {
	repos := a.Repos
	w := a.Config.Worker

	a.Evaluator = &scheduling.Evaluator{Settings: repos.SendingSettings, Sent: repos.SentEmails}
	a.Notifier = &service.Notifier{Repo: repos.Notifications, Queue: a.Queue}
	a.Guardrail = &service.GuardrailService{Workspaces: repos.Workspaces, Evaluator: a.Evaluator}
	a.Settings = &service.SendingSettingsService{Repo: repos.SendingSettings, Evaluator: a.Evaluator, Validate: validator.New()}
	scheduler := &service.SequenceScheduler{Emails: repos.ScheduledEmails, Sequences: repos.Sequences, Evaluator: a.Evaluator}
	a.Cascade = &service.CascadeService{
		Prospects:   repos.Prospects,
		Enrollments: repos.Enrollments,
		Emails:      repos.ScheduledEmails,
		Audit:       repos.Audit,
	}
	a.Classification = &service.ClassificationService{Inbox: repos.Inbox, Cascade: a.Cascade}
	a.Control = &service.CampaignControlService{
		Campaigns:   repos.Campaigns,
		Enrollments: repos.Enrollments,
		Emails:      repos.ScheduledEmails,
		Sequences:   repos.Sequences,
		Audit:       repos.Audit,
		Guardrail:   a.Guardrail,
		Scheduler:   scheduler,
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(ratelimit.MaxConcurrentRequests)
	if a.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(a.Redis, ratelimit.MaxConcurrentRequests, 0)
	}

	a.Dispatcher = &worker.Dispatcher{
		Repos:     repos,
		Evaluator: a.Evaluator,
		Tokens:    a.Gateway,
		Sender:    a.Gateway,
		Limiter:   limiter,
		Locks:     lock.NewProvider(a.Redis, a.DB, w.ClaimTTL),
		Scheduler: scheduler,
		Anomaly: &service.AnomalyMonitor{
			Campaigns: repos.Campaigns,
			Emails:    repos.ScheduledEmails,
			Prospects: repos.Prospects,
			Audit:     repos.Audit,
			Notifier:  a.Notifier,
		},
		BatchSize:   w.BatchSize,
		SendTimeout: w.SendTimeout,
		ClaimTTL:    w.ClaimTTL,
		MinDelay:    w.MinSendDelay,
		MaxDelay:    w.MaxSendDelay,
		Parallelism: w.Parallelism,
	}
	a.Sync = &worker.InboxSync{
		Repos:        repos,
		Mailbox:      a.Gateway,
		Limiter:      limiter,
		Classifier:   a.Classification,
		MessageDelay: w.SyncMessageDelay,
		Parallelism:  w.Parallelism,
	}
}

// Router builds the HTTP API.
func (a *App) Router() http.Handler {
	campaigns := &controller.CampaignController{Control: a.Control, Queue: a.Queue}
	workspaces := &controller.WorkspaceController{Guardrail: a.Guardrail, Settings: a.Settings}
	signals := &controller.SignalController{
		Prospects:      a.Repos.Prospects,
		Cascade:        a.Cascade,
		Classification: a.Classification,
	}
	cron := &handler.CronHandler{Secret: a.Config.CronSecret, Dispatch: a.Dispatcher, Sync: a.Sync}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Campaign routes
	r.Post("/campaigns/{id}/launch", campaigns.Launch)
	r.Post("/campaigns/{id}/status", campaigns.UpdateStatus)
	r.Post("/campaigns/{id}/prospects/{prospectId}/status", campaigns.UpdateProspectStatus)

	// Workspace routes
	r.Get("/workspaces/{id}/can-send", workspaces.CanSend)
	r.Get("/workspaces/{id}/sending-settings", workspaces.GetSendingSettings)
	r.Put("/workspaces/{id}/sending-settings", workspaces.UpsertSendingSettings)

	// Signals
	r.Post("/prospects/{id}/signals", signals.ProspectSignal)
	r.Post("/inbox/messages/{id}/classification", signals.ClassifyMessage)

	cron.Routes(r)
	return r
}

// StartSubscribers attaches the notification logger and, when dispatch is
// true, the consumer of on-demand dispatch requests.
func (a *App) StartSubscribers(dispatch bool) error {
	if err := queue.StartNotificationLogger(a.Queue); err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	if !dispatch {
		return nil
	}
	return queue.StartDispatchRequestSubscriber(a.Queue, func(ctx context.Context, workspaceID string) error {
		res := a.Dispatcher.DispatchWorkspace(ctx, workspaceID)
		if !res.Success {
			return fmt.Errorf("dispatch %s: %s", workspaceID, res.Error)
		}
		return nil
	})
}

// Close releases every connection opened by New, last opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Println("⚠️ Close failed:", err)
		}
	}
	a.closers = nil
}
