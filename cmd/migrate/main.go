// cmd/migrate/main.go
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Store != config.StorePostgres {
		log.Fatal("migrations need STORE=postgres")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	applied, err := db.Migrate(context.Background(), conn, migrations.FS)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Database migrated successfully! %d file(s) applied\n", len(applied))
}
