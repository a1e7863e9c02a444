package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/app"
	"github.com/LJTian/HoopsHub/internal/config"
)

// One collection cycle, then exit; diagnostics go to stdout as JSON.
func main() {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg.SetupLogging()

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer a.Close()

	if err := a.SeedChannels(ctx); err != nil {
		log.Fatalf("seed channels failed: %v", err)
	}

	run, err := a.Scheduler.RunOnce(ctx)
	if err != nil {
		log.Fatalf("collect failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		log.Fatalf("encode result failed: %v", err)
	}
}
