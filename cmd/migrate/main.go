package main

import (
	"context"
	"fmt"
	"os"

	"crystalgate/internal/logger"
	"crystalgate/internal/repository"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	dsn := flag.String("dsn", "", "Postgres connection string (defaults to DB_CONNECTION_STRING)")
	level := flag.String("log-level", "info", "Log level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate [flags] <up|down|status|redo|reset|version> [args]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logger.New("development", *level)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}
	if *dsn == "" {
		*dsn = os.Getenv("DB_CONNECTION_STRING")
	}
	if *dsn == "" || flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	command := flag.Arg(0)
	if err := repository.RunMigrations(context.Background(), *dsn, command, flag.Args()[1:]...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
	log.Info().Str("command", command).Msg("Migration complete")
}
