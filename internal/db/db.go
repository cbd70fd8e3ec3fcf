// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection with a ping.
func Open(dsn string) (*sql.DB, error) {
	if u, err := url.Parse(dsn); err == nil && u.Host != "" {
		log.Println("DB_HOST:", u.Host)
		log.Println("DB_NAME:", u.Path)
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Println("✅ Connected to database")
	return conn, nil
}
