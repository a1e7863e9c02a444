package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/HoopsHub/internal/collector"
)

const runTTL = 7 * 24 * time.Hour

// ErrNoRun is returned when no collection run has been recorded yet.
var ErrNoRun = errors.New("storage: no run recorded")

// Run summarises one collection cycle for health and debug output.
type Run struct {
	Updated      int64                  `json:"updated"`
	TookMS       int64                  `json:"took_ms"`
	Items        int                    `json:"items"`
	Inserted     int                    `json:"inserted"`
	Diagnostics  []collector.Diagnostic `json:"diagnostics"`
	PersistError string                 `json:"persist_error,omitempty"`
}

func NewRun(res collector.CollectionResult) Run {
	return Run{
		Updated:     res.Updated,
		TookMS:      res.TookMS,
		Items:       len(res.Items),
		Diagnostics: res.Diagnostics,
	}
}

// Good reports whether the run produced anything worth serving.
func (r Run) Good() bool {
	return r.Items > 0
}

type RunKind int

const (
	RunLatest RunKind = iota
	RunLastGood
)

func (k RunKind) key() string {
	if k == RunLastGood {
		return "hoopshub:run:last_good"
	}
	return "hoopshub:run:last"
}

// SaveRun records run as the latest, and as the last good run when it has items.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if s.Redis == nil {
		return nil
	}
	bs, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("storage: encode run: %w", err)
	}
	pipe := s.Redis.TxPipeline()
	pipe.Set(ctx, RunLatest.key(), bs, runTTL)
	if run.Good() {
		pipe.Set(ctx, RunLastGood.key(), bs, runTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: save run: %w", err)
	}
	return nil
}

func (s *Store) LastRun(ctx context.Context, kind RunKind) (Run, error) {
	if s.Redis == nil {
		return Run{}, ErrNoRun
	}
	bs, err := s.Redis.Get(ctx, kind.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Run{}, ErrNoRun
	}
	if err != nil {
		return Run{}, fmt.Errorf("storage: load run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(bs, &run); err != nil {
		return Run{}, fmt.Errorf("storage: decode run: %w", err)
	}
	return run, nil
}
