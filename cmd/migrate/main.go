// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"huddle/internal/config"
	"huddle/internal/database"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|status|ping>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "ping":
		return ping(ctx, cfg)
	case "up", "status":
	default:
		return usage()
	}

	// Production connections skip the implicit migration, so "up" is explicit.
	cfg.Env = "production"
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if cmd == "up" {
		if err := database.Migrate(db.WithContext(ctx)); err != nil {
			return err
		}
		log.Println("schema applied")
		return nil
	}
	return status(db)
}

func status(db *gorm.DB) error {
	missing := 0
	for _, m := range database.PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return fmt.Errorf("parse %T: %w", m, err)
		}
		present := db.Migrator().HasTable(m)
		if !present {
			missing++
		}
		log.Printf("%-20s present=%t", stmt.Schema.Table, present)
	}
	if missing > 0 {
		return fmt.Errorf("%d tables missing; run migrate up", missing)
	}
	return nil
}

// ping checks raw Postgres reachability without going through GORM.
func ping(ctx context.Context, cfg *config.Config) error {
	if cfg.DBDriver == "sqlite" {
		return fmt.Errorf("ping needs a postgres configuration")
	}
	conn, err := pgx.Connect(ctx, database.PostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	log.Printf("postgres reachable: %s", version)
	return nil
}
