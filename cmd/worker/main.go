package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/worker"
)

type pass interface {
	RunOnce(ctx context.Context) (*worker.Summary, error)
}

// schedule registers a pass on the cron. SkipIfStillRunning keeps a slow
// pass from overlapping with the next tick.
func schedule(ctx context.Context, c *cron.Cron, name, spec string, p pass) error {
	_, err := c.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
		if _, err := p.RunOnce(ctx); err != nil {
			log.Printf("❌ %s pass failed: %v", name, err)
		}
	})))
	if err != nil {
		return err
	}
	log.Printf("⏰ %s scheduled with %q", name, spec)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ ", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal("❌ ", err)
	}
	defer a.Close()

	if err := a.StartSubscribers(true); err != nil {
		log.Fatal("❌ ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := cron.New()
	if err := schedule(ctx, c, "Dispatch", cfg.DispatchSchedule, a.Dispatcher); err != nil {
		log.Fatal("❌ Invalid DISPATCH_SCHEDULE: ", err)
	}
	if err := schedule(ctx, c, "Inbox sync", cfg.SyncSchedule, a.Sync); err != nil {
		log.Fatal("❌ Invalid SYNC_SCHEDULE: ", err)
	}
	c.Start()
	log.Println("Worker running, waiting for messages...")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("🛑 Stopping worker")
	cancel()
	<-c.Stop().Done()
}
