package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/logger"
)

// migrateLogger routes golang-migrate output through zerolog.
type migrateLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return l.verbose }

func main() {
	var (
		migrationDir string
		databaseURL  string
		verbose      bool
	)
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.BoolVar(&verbose, "verbose", false, "Log every migration step")
	flag.Usage = printUsage
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat).With().Str("component", "migrate").Logger()

	if databaseURL == "" {
		databaseURL = cfg.DatabaseURL
	}
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationDir, databaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	m.Log = migrateLogger{log: log, verbose: verbose}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Close migrator failed")
		}
	}()

	command := args[0]
	if command != "version" && command != "force" {
		refuseDirty(m, log)
	}

	switch command {
	case "up":
		n := optionalCount(args, log)
		if n == 0 {
			err = m.Up()
		} else {
			err = m.Steps(n)
		}
	case "down":
		// One step unless told otherwise; "reset" drops everything.
		err = m.Steps(-max(optionalCount(args, log), 1))
	case "reset":
		err = m.Down()
	case "goto":
		if len(args) < 2 {
			log.Fatal().Msg("goto requires a version argument")
		}
		v, perr := strconv.ParseUint(args[1], 10, 64)
		if perr != nil {
			log.Fatal().Err(perr).Str("version", args[1]).Msg("Invalid version")
		}
		err = m.Migrate(uint(v))
	case "force":
		if len(args) < 2 {
			log.Fatal().Msg("force requires a version argument")
		}
		v, perr := strconv.Atoi(args[1])
		if perr != nil {
			log.Fatal().Err(perr).Str("version", args[1]).Msg("Invalid version")
		}
		err = m.Force(v)
	case "version":
	default:
		printUsage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", command).Msg("No change")
	}
	reportVersion(m, log, command)
}

// refuseDirty stops before touching a schema left half-applied; the operator
// must fix it by hand and run force.
func refuseDirty(m *migrate.Migrate, log zerolog.Logger) {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal().Err(err).Msg("Read schema version failed")
	}
	if dirty {
		log.Fatal().Uint("version", version).Msg("Schema is dirty; repair it and run force <version>")
	}
}

func reportVersion(m *migrate.Migrate, log zerolog.Logger, command string) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Str("command", command).Msg("Schema is empty")
	case err != nil:
		log.Fatal().Err(err).Msg("Read schema version failed")
	default:
		log.Info().Str("command", command).Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	}
}

func optionalCount(args []string, log zerolog.Logger) int {
	if len(args) < 2 {
		return 0
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		log.Fatal().Str("steps", args[1]).Msg("Step count must be a positive integer")
	}
	return n
}

func printUsage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: migrate [flags] <command>")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up [N]         apply all pending migrations, or the next N")
	fmt.Fprintln(out, "  down [N]       roll back the last migration, or the last N")
	fmt.Fprintln(out, "  reset          roll back every migration")
	fmt.Fprintln(out, "  goto V         migrate up or down to version V")
	fmt.Fprintln(out, "  force V        mark version V as applied and clean")
	fmt.Fprintln(out, "  version        print the current version")
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
}
