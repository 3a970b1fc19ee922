package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "up, down or to")
	version := flag.Uint("version", 0, "target version for -direction=to")
	dir := flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger("booking-migrate", "")

	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	opts := migrations.DefaultOptions()
	opts.MigrationsDir = cfg.Database.MigrationsDir
	if *dir != "" {
		opts.MigrationsDir = *dir
	}
	runner := migrations.NewRunner(bunDB, opts, log)
	defer runner.Close()

	switch *direction {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*version)
	default:
		log.Error("MIGRATE", fmt.Sprintf("unknown direction %q", *direction))
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	current, dirty, err := runner.Version()
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("Schema at version %d (dirty: %t)", current, dirty))
}
