// Package app wires configuration, storage and the collection pipeline for the binaries.
package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/collector"
	"github.com/LJTian/HoopsHub/internal/config"
	"github.com/LJTian/HoopsHub/internal/processor"
	"github.com/LJTian/HoopsHub/internal/scheduler"
	"github.com/LJTian/HoopsHub/internal/storage"
)

type App struct {
	Config    *config.Config
	Catalog   *config.Catalog
	Store     *storage.Store
	Scheduler *scheduler.Scheduler
}

// New loads the catalog, connects storage and builds the scheduler around
// a fresh orchestrator.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	catalog, err := config.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	orch, err := collector.NewOrchestrator(
		cfg.CollectorConfig(catalog.Sources),
		collector.NewHTTPFetcher(cfg.FetcherOptions()),
		collector.NewClassifier(catalog.ClassifierRules()),
	)
	if err != nil {
		return nil, fmt.Errorf("init collector: %w", err)
	}

	store, err := storage.NewStore(ctx, cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	s, err := scheduler.New(cfg.CronSpec, orch, processor.NewSimpleProcessor(), store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	log.WithField("sources", len(catalog.Sources)).Info("pipeline ready")
	return &App{Config: cfg, Catalog: catalog, Store: store, Scheduler: s}, nil
}

// SeedChannels makes sure every collected and curated source has a channel row.
func (a *App) SeedChannels(ctx context.Context) error {
	for _, src := range a.Catalog.Sources {
		if _, err := a.Store.EnsureChannel(ctx, ChannelCode(src.Name), src.Name, src.URL); err != nil {
			return fmt.Errorf("ensure channel %s: %w", src.Name, err)
		}
	}
	for _, name := range a.Catalog.CuratedSources {
		if _, err := a.Store.EnsureChannel(ctx, ChannelCode(name), name, ""); err != nil {
			return fmt.Errorf("ensure channel %s: %w", name, err)
		}
	}
	return nil
}

func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		log.WithError(err).Warn("close store")
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ChannelCode turns a display name into a stable lowercase code,
// e.g. "Hammer & Rails" -> "hammer-rails".
func ChannelCode(name string) string {
	code := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(code) > 64 {
		code = strings.TrimRight(code[:64], "-")
	}
	return code
}
