package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/HoopsHub/internal/collector"
	"github.com/LJTian/HoopsHub/internal/processor"
	"github.com/LJTian/HoopsHub/internal/storage"
)

type fakeCollector struct {
	panics  bool
	result  collector.CollectionResult
	started chan struct{}
	release chan struct{}
}

func (f *fakeCollector) CollectAll(ctx context.Context) collector.CollectionResult {
	if f.panics {
		panic("collector exploded")
	}
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.result
}

type fakeSink struct {
	mu      sync.Mutex
	saved   []processor.Article
	runs    []storage.Run
	saveErr error
	stored  map[storage.RunKind]storage.Run
}

func (f *fakeSink) SaveBatch(ctx context.Context, items []processor.Article) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, items...)
	return len(items), nil
}

func (f *fakeSink) SaveRun(ctx context.Context, run storage.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeSink) LastRun(ctx context.Context, kind storage.RunKind) (storage.Run, error) {
	if run, ok := f.stored[kind]; ok {
		return run, nil
	}
	return storage.Run{}, storage.ErrNoRun
}

func result(items ...collector.Item) collector.CollectionResult {
	return collector.CollectionResult{
		Updated: 1700000000,
		Items:   items,
		Diagnostics: []collector.Diagnostic{
			{Name: "ok", OK: true, Fetched: len(items), Kept: len(items)},
			{Name: "bad", Error: collector.TagHTTPError, Detail: "status 500"},
		},
	}
}

func newTestScheduler(t *testing.T, c Collector, sink Sink) *Scheduler {
	t.Helper()
	s, err := New("@every 1h", c, processor.NewSimpleProcessor(), sink)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000100, 0) }
	return s
}

func TestRunOncePersistsAndRemembers(t *testing.T) {
	sink := &fakeSink{}
	c := &fakeCollector{result: result(
		collector.Item{Title: "a", Link: "https://x/a", Source: "ok", PublishedTS: 1},
		collector.Item{Title: "b", Link: "https://x/b", Source: "ok", PublishedTS: 2},
	)}
	s := newTestScheduler(t, c, sink)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Items)
	assert.Equal(t, 2, run.Inserted)
	assert.Len(t, run.Diagnostics, 2)
	assert.Len(t, sink.saved, 2)
	require.Len(t, sink.runs, 1)

	last, ok := s.Last(context.Background(), storage.RunLatest)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), last.Updated)
}

func TestEmptyRunKeepsLastGood(t *testing.T) {
	sink := &fakeSink{}
	c := &fakeCollector{result: result(collector.Item{Title: "a", Link: "https://x/a", PublishedTS: 1})}
	s := newTestScheduler(t, c, sink)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	c.result = result()
	c.result.Updated = 1700000500
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)

	latest, ok := s.Last(context.Background(), storage.RunLatest)
	require.True(t, ok)
	assert.Equal(t, 0, latest.Items)

	good, ok := s.Last(context.Background(), storage.RunLastGood)
	require.True(t, ok)
	assert.Equal(t, 1, good.Items)
	assert.Equal(t, int64(1700000000), good.Updated)
}

func TestPersistFailureDoesNotFailRun(t *testing.T) {
	sink := &fakeSink{saveErr: errors.New("db down")}
	c := &fakeCollector{result: result(collector.Item{Title: "a", Link: "https://x/a"})}
	s := newTestScheduler(t, c, sink)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "db down", run.PersistError)
	assert.Equal(t, 0, run.Inserted)
	assert.Len(t, sink.runs, 1)
}

func TestOverlappingRunIsRejected(t *testing.T) {
	c := &fakeCollector{result: result(), started: make(chan struct{}), release: make(chan struct{})}
	s := newTestScheduler(t, c, &fakeSink{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-c.started

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(c.release)
	require.NoError(t, <-done)
}

func TestLastFallsBackToSink(t *testing.T) {
	sink := &fakeSink{stored: map[storage.RunKind]storage.Run{
		storage.RunLastGood: {Updated: 42, Items: 3},
	}}
	s := newTestScheduler(t, &fakeCollector{}, sink)

	run, ok := s.Last(context.Background(), storage.RunLastGood)
	require.True(t, ok)
	assert.Equal(t, int64(42), run.Updated)

	_, ok = s.Last(context.Background(), storage.RunLatest)
	assert.False(t, ok)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a spec", &fakeCollector{}, processor.NewSimpleProcessor(), &fakeSink{})
	assert.Error(t, err)
}

func TestFirstCycleRecoversFromPanic(t *testing.T) {
	c := &fakeCollector{panics: true}
	s := newTestScheduler(t, c, &fakeSink{})

	assert.NotPanics(t, s.first.Run)

	// the run lock is released by the panicking cycle
	c.panics = false
	_, err := s.RunOnce(context.Background())
	assert.NoError(t, err)
}
