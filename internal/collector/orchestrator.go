package collector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBudget      = 45 * time.Second
	DefaultPoliteDelay = 250 * time.Millisecond
	DefaultMaxItems    = 500
)

// Config is everything a collection cycle needs; there is no package-level state.
type Config struct {
	Sources           []Source
	Budget            time.Duration
	PoliteDelay       time.Duration
	MaxItems          int
	MaxEntriesPerFeed int
}

// Orchestrator runs one collection cycle over all sources, sequentially.
// It has no locking; callers must not run CollectAll concurrently if they care.
type Orchestrator struct {
	cfg        Config
	fetcher    Fetcher
	parser     *Parser
	normalizer Normalizer
	classifier *Classifier

	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

type Option func(*Orchestrator)

// WithClock replaces the wall clock and the politeness sleep, mainly for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration)) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

func NewOrchestrator(cfg Config, f Fetcher, c *Classifier, opts ...Option) (*Orchestrator, error) {
	if f == nil {
		return nil, errors.New("collector: nil fetcher")
	}
	if c == nil {
		return nil, errors.New("collector: nil classifier")
	}
	for _, s := range cfg.Sources {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("collector: %w", err)
		}
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.PoliteDelay < 0 {
		cfg.PoliteDelay = 0
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}

	o := &Orchestrator{
		cfg:        cfg,
		fetcher:    f,
		parser:     NewParser(cfg.MaxEntriesPerFeed),
		normalizer: NewNormalizer(),
		classifier: c,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) Sources() []Source {
	return slices.Clone(o.cfg.Sources)
}

// CollectAll never fails: source problems end up in the diagnostics.
func (o *Orchestrator) CollectAll(ctx context.Context) CollectionResult {
	start := o.now()
	diags := make([]Diagnostic, 0, len(o.cfg.Sources))
	var items []Item

	for i, src := range o.cfg.Sources {
		if i > 0 && o.cfg.PoliteDelay > 0 {
			o.sleep(ctx, o.cfg.PoliteDelay)
		}

		if tag := o.stopTag(ctx, start); tag != "" {
			for _, rest := range o.cfg.Sources[i:] {
				diags = append(diags, failure(rest, tag, "not attempted"))
			}
			log.WithFields(log.Fields{"reason": tag, "skipped": len(o.cfg.Sources) - i}).
				Warn("collect: stopping early")
			break
		}

		out := o.collectSource(ctx, src)
		diags = append(diags, out.diagnostic)
		items = append(items, out.items...)
	}

	items = lo.UniqBy(items, func(it Item) string { return it.Link })
	slices.SortStableFunc(items, func(a, b Item) int {
		return cmp.Compare(b.PublishedTS, a.PublishedTS)
	})
	if len(items) > o.cfg.MaxItems {
		items = items[:o.cfg.MaxItems]
	}

	took := o.now().Sub(start)
	log.Printf("collect: cycle done, %d items from %d sources in %s", len(items), len(o.cfg.Sources), took.Round(time.Millisecond))

	return CollectionResult{
		Updated:     start.Unix(),
		Items:       items,
		Diagnostics: diags,
		TookMS:      took.Milliseconds(),
	}
}

func (o *Orchestrator) stopTag(ctx context.Context, start time.Time) string {
	if ctx.Err() != nil {
		return TagCanceled
	}
	if o.now().Sub(start) > o.cfg.Budget {
		return TagBudgetExceeded
	}
	return ""
}

type sourceOutcome struct {
	items      []Item
	diagnostic Diagnostic
}

func (o *Orchestrator) collectSource(ctx context.Context, src Source) sourceOutcome {
	logger := log.WithFields(log.Fields{"source": src.Name})

	raw, err := o.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		tag := errorTag(err)
		if ctx.Err() != nil {
			tag = TagCanceled
		}
		logger.Warnf("fetch failed: %v", err)
		return sourceOutcome{diagnostic: failure(src, tag, err.Error())}
	}

	entries, err := o.parser.Parse(src.Format, raw)
	if err != nil {
		logger.Warnf("parse failed: %v", err)
		return sourceOutcome{diagnostic: failure(src, errorTag(err), err.Error())}
	}

	now := o.now()
	kept := make([]Item, 0, len(entries))
	for _, e := range entries {
		it, ok := o.normalizer.Normalize(e, src.Name, now)
		if !ok || !src.titleAllowed(it.Title) || !o.classifier.IsRelevant(it) {
			continue
		}
		kept = append(kept, it)
		if src.MaxItems > 0 && len(kept) >= src.MaxItems {
			break
		}
	}

	logger.WithFields(log.Fields{"fetched": len(entries), "kept": len(kept)}).Debug("source done")
	return sourceOutcome{
		items: kept,
		diagnostic: Diagnostic{
			Name:    src.Name,
			URL:     src.URL,
			OK:      true,
			Fetched: len(entries),
			Kept:    len(kept),
		},
	}
}

func failure(src Source, tag, detail string) Diagnostic {
	return Diagnostic{Name: src.Name, URL: src.URL, Error: tag, Detail: detail}
}

func errorTag(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrRateLimited):
		return TagRateLimited
	case errors.As(err, &statusErr):
		return TagHTTPError
	case errors.Is(err, ErrMalformedFeed):
		return TagParseError
	default:
		return TagNetworkError
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
