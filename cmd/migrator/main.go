package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/migrations"
	"github.com/noah-isme/hostelx-api/pkg/config"
	"github.com/noah-isme/hostelx-api/pkg/database"
	"github.com/noah-isme/hostelx-api/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var command string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("migrator", pflag.ContinueOnError)
	flagSet.StringVarP(&command, "command", "c", "up", "migration command: up, down, status or version")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the command")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger, falling back to nop: %v", err)
		logr = zap.NewNop()
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB, migrations.FS)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		for _, res := range results {
			logr.Info("migration applied", zap.String("source", res.Source.Path), zap.Duration("duration", res.Duration))
		}
		if err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		if len(results) == 0 {
			logr.Info("schema already up to date")
		}
	case "down":
		res, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		logr.Info("migration rolled back", zap.String("source", res.Source.Path))
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-6d %-40s %s\n", st.Source.Version, st.Source.Path, applied)
		}
	case "version":
		version, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("goose version: %w", err)
		}
		fmt.Println(version)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `migrator applies the embedded PostgreSQL schema.

Connection settings come from the same DB_* environment the API reads.

Usage:
  migrator [--command up|down|status|version]

Flags:
`)
	flagSet.PrintDefaults()
}
