package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/intellirate/gateway/internal/app"
	"github.com/intellirate/gateway/internal/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Optional .env bootstrap; environment variables override file values.
	_ = godotenv.Load()

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		fmt.Fprintln(os.Stderr, errLoad)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := flag.Arg(0)
	switch command {
	case "migrate":
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			log.WithError(errMigrate).Fatal("migration failed")
		}
		log.Info("migrations applied")
	case "", "serve":
		if errRun := app.RunServer(ctx, cfg); errRun != nil {
			log.WithError(errRun).Fatal("server exited")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected serve or migrate)\n", command)
		os.Exit(2)
	}
}
