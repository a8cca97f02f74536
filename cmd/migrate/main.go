package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

// usage: migrate [up|down|version|force N]
func main() {
	_ = godotenv.Load()
	logger := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL"), Service: "migrate"})

	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cmd == "up" {
		if err := db.MigrateUp(dsn); err != nil {
			logger.Fatal("migrate up failed", "error", err)
		}
		logger.Info("migrations applied")
		return
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		logger.Fatal("open migrator", "error", err)
	}
	defer func() { _, _ = m.Close() }()

	switch cmd {
	case "down":
		err = m.Steps(-1)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			err = verr
			break
		}
		logger.Info("schema version", "version", v, "dirty", dirty)
	case "force":
		v, perr := parseVersion(flag.Arg(1))
		if perr != nil {
			logger.Fatal("force needs a version number", "error", perr)
		}
		err = m.Force(v)
	default:
		logger.Fatal("unknown command", "command", cmd)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("migrate failed", "command", cmd, "error", err)
	}
	logger.Info("migrate done", "command", cmd)
}

func parseVersion(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing version")
	}
	return strconv.Atoi(s)
}
