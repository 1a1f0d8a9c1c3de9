package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/enums"
	pkgerrors "github.com/angelmondragon/packclaim/pkg/errors"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/outbox"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "claimctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	jobs, err := queue.NewClient(queue.NewRepository(dbClient.DB()), enums.QueueClaimPack)
	if err != nil {
		logg.Error(ctx, "failed to create queue client", err)
		os.Exit(1)
	}

	cli := &app{jobs: jobs, dlq: outbox.NewDLQRepository(dbClient.DB())}
	if err := cli.run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
