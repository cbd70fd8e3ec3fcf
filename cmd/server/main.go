// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/outreach-backend/internal/app"
	"github.com/unclebandit/outreach-backend/internal/config"
)

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

	// With a broker the worker process consumes the queue; otherwise this
	// process is the only one that can.
	if cfg.AMQPURL == "" {
		if err := a.StartSubscribers(true); err != nil {
			log.Fatal("❌ ", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("🚀 Server running on", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ ", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("🛑 Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("⚠️ Graceful shutdown failed:", err)
	}
}
