package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/collector"
	"github.com/LJTian/HoopsHub/internal/processor"
	"github.com/LJTian/HoopsHub/internal/storage"
)

// ErrAlreadyRunning is returned by RunOnce while another cycle is in progress.
var ErrAlreadyRunning = errors.New("scheduler: collection already running")

// Collector runs one collection cycle.
type Collector interface {
	CollectAll(ctx context.Context) collector.CollectionResult
}

// Sink persists articles and run summaries.
type Sink interface {
	SaveBatch(ctx context.Context, items []processor.Article) (int, error)
	SaveRun(ctx context.Context, run storage.Run) error
	LastRun(ctx context.Context, kind storage.RunKind) (storage.Run, error)
}

type Scheduler struct {
	cron      *cron.Cron
	first     cron.Job
	collector Collector
	processor *processor.SimpleProcessor
	sink      Sink
	now       func() time.Time

	running sync.Mutex

	mu       sync.RWMutex
	last     *storage.Run
	lastGood *storage.Run
}

func New(spec string, c Collector, p *processor.SimpleProcessor, sink Sink) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.StandardLogger())
	cr := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{
		cron:      cr,
		collector: c,
		processor: p,
		sink:      sink,
		now:       time.Now,
	}
	// the delayed first cycle runs outside cron, so it needs its own Recover
	s.first = cron.NewChain(cron.Recover(logger)).Then(cron.FuncJob(s.scheduled))

	if _, err := cr.AddFunc(spec, s.scheduled); err != nil {
		return nil, err
	}
	return s, nil
}

// Start starts the cron loop and runs the first cycle after startupDelay.
func (s *Scheduler) Start(startupDelay time.Duration) {
	s.cron.Start()
	time.AfterFunc(startupDelay, s.first.Run)
}

// Stop stops the cron loop; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) scheduled() {
	if _, err := s.RunOnce(context.Background()); errors.Is(err, ErrAlreadyRunning) {
		log.Info("scheduler: previous cycle still running, skipped")
	}
}

// RunOnce collects, persists and records one cycle. At most one cycle runs
// at a time; an overlapping call gets ErrAlreadyRunning. Persistence
// failures are logged and reported in the run, never returned.
func (s *Scheduler) RunOnce(ctx context.Context) (storage.Run, error) {
	if !s.running.TryLock() {
		return storage.Run{}, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	log.Info("scheduler: collect cycle start")
	res := s.collector.CollectAll(ctx)
	run := storage.NewRun(res)

	failed := 0
	for _, d := range res.Diagnostics {
		if !d.OK {
			failed++
			log.WithFields(log.Fields{"source": d.Name, "error": d.Error, "detail": d.Detail}).Warn("scheduler: source failed")
		}
	}

	articles := s.processor.Process(res.Items, s.now())
	if len(articles) > 0 {
		n, err := s.sink.SaveBatch(ctx, articles)
		if err != nil {
			log.WithError(err).Error("scheduler: persist articles")
			run.PersistError = err.Error()
		}
		run.Inserted = n
	}

	if err := s.sink.SaveRun(ctx, run); err != nil {
		log.WithError(err).Warn("scheduler: save run snapshot")
	}
	s.remember(run)

	log.WithFields(log.Fields{
		"items":    run.Items,
		"inserted": run.Inserted,
		"failed":   failed,
		"took_ms":  run.TookMS,
	}).Info("scheduler: collect cycle done")
	return run, nil
}

func (s *Scheduler) remember(run storage.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &run
	if run.Good() {
		s.lastGood = &run
	}
}

// Last returns the most recent run of kind, from memory or the sink's snapshot.
func (s *Scheduler) Last(ctx context.Context, kind storage.RunKind) (storage.Run, bool) {
	s.mu.RLock()
	mem := s.last
	if kind == storage.RunLastGood {
		mem = s.lastGood
	}
	s.mu.RUnlock()
	if mem != nil {
		return *mem, true
	}

	run, err := s.sink.LastRun(ctx, kind)
	if err != nil {
		if !errors.Is(err, storage.ErrNoRun) {
			log.WithError(err).Warn("scheduler: load run snapshot")
		}
		return storage.Run{}, false
	}
	return run, true
}
