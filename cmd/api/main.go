package main

import (
	"context"
	"errors"
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/api"
	"github.com/LJTian/HoopsHub/internal/app"
	"github.com/LJTian/HoopsHub/internal/config"
)

func main() {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cfg.SetupLogging()

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer a.Close()

	startup(a)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	api.NewServer(a.Store, a.Scheduler, a.Catalog, cfg.RefreshSecret).RegisterRoutes(r)
	if cfg.RefreshSecret == "" {
		log.Warn("REFRESH_SECRET not set, POST /api/v1/refresh is disabled")
	}

	addr := ":" + cfg.AppPort
	log.Infof("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

// startup runs once before serving: seed channels, then start the scheduler.
func startup(a *app.App) {
	if err := a.SeedChannels(context.Background()); err != nil {
		log.Fatalf("seed channels failed: %v", err)
	}
	a.Scheduler.Start(a.Config.StartupDelay)
	log.Infof("scheduler started: cron=%q first run in %s", a.Config.CronSpec, a.Config.StartupDelay)
}
