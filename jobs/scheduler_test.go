package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog treats every upsert as a new program and serves a canned
// program list for notification lookups.
type stubCatalog struct {
	mutex    sync.Mutex
	upserts  int
	runs     []models.IngestionRun
	listing  []models.Program
	listErrs bool
}

func (s *stubCatalog) FindByIdentity(context.Context, string) (*models.Program, error) {
	return nil, nil
}

func (s *stubCatalog) UpsertProgram(_ context.Context, _ *models.Program) (bool, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.upserts++
	return true, false, nil
}

func (s *stubCatalog) AppendRunLog(_ context.Context, run *models.IngestionRun) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *stubCatalog) Stats(context.Context) (*models.AggregateStats, error) {
	return &models.AggregateStats{ByPlatform: map[string]int{}}, nil
}

func (s *stubCatalog) ListPrograms(context.Context, models.ProgramFilters) ([]models.Program, error) {
	if s.listErrs {
		return nil, errors.New("listing unavailable")
	}
	return s.listing, nil
}

func (s *stubCatalog) RecentRuns(context.Context, int) ([]models.IngestionRun, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.runs, nil
}

// blockingScraper parks inside FetchPrograms until released, so tests can
// hold a source in the Running state.
type blockingScraper struct {
	platform string
	started  chan struct{}
	release  chan struct{}
	fetches  int32
}

func newBlockingScraper(platform string) *blockingScraper {
	return &blockingScraper{
		platform: platform,
		started:  make(chan struct{}, 8),
		release:  make(chan struct{}),
	}
}

func (s *blockingScraper) PlatformName() string { return s.platform }

func (s *blockingScraper) FetchPrograms(context.Context) ([]models.Program, error) {
	atomic.AddInt32(&s.fetches, 1)
	s.started <- struct{}{}
	<-s.release
	return nil, nil
}

// countingScraper returns a fixed batch and counts invocations.
type countingScraper struct {
	platform string
	batch    []models.Program
	fetches  int32
}

func (s *countingScraper) PlatformName() string { return s.platform }

func (s *countingScraper) FetchPrograms(context.Context) ([]models.Program, error) {
	atomic.AddInt32(&s.fetches, 1)
	programs := make([]models.Program, len(s.batch))
	copy(programs, s.batch)
	return programs, nil
}

// failingScraper always fails the whole fetch.
type failingScraper struct{ platform string }

func (s *failingScraper) PlatformName() string { return s.platform }

func (s *failingScraper) FetchPrograms(context.Context) ([]models.Program, error) {
	return nil, errors.New("network unreachable")
}

// recordingNotifier captures forwarded events.
type recordingNotifier struct {
	mutex     sync.Mutex
	summaries []string
	alerts    []string
}

func (n *recordingNotifier) SendBatchSummary(newCount, updatedCount int, source string) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.summaries = append(n.summaries, source)
	return true
}

func (n *recordingNotifier) SendNewProgram(program *models.Program) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.alerts = append(n.alerts, program.Slug)
	return true
}

func batchOf(platform string, count int) []models.Program {
	programs := make([]models.Program, count)
	for i := range programs {
		programs[i] = models.Program{
			Platform: platform,
			Slug:     string(rune('a' + i)),
			Name:     "Program",
		}
		programs[i].Normalize()
	}
	return programs
}

func newTestScheduler(catalog services.CatalogStore, notifier *recordingNotifier) *Scheduler {
	engine := services.NewIngestionService(catalog)
	if notifier == nil {
		return NewScheduler(engine, catalog, nil, time.Hour)
	}
	return NewScheduler(engine, catalog, notifier, time.Hour)
}

func TestRunSourceUnknownPlatform(t *testing.T) {
	scheduler := newTestScheduler(&stubCatalog{}, nil)

	_, err := scheduler.RunSource("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRunSourceSerializesPerSource(t *testing.T) {
	catalog := &stubCatalog{}
	scheduler := newTestScheduler(catalog, nil)
	scraper := newBlockingScraper("h1")
	scheduler.Register(scraper)

	results := make(chan *models.IngestionRun, 1)
	go func() {
		run, err := scheduler.RunSource("h1")
		require.NoError(t, err)
		results <- run
	}()

	// Wait until the first run is inside the fetch.
	select {
	case <-scraper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	// A concurrent trigger for the same source is skipped, not queued.
	_, err := scheduler.RunSource("h1")
	assert.ErrorIs(t, err, ErrSourceBusy)

	close(scraper.release)

	select {
	case run := <-results:
		assert.True(t, run.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("first run never completed")
	}

	assert.EqualValues(t, 1, atomic.LoadInt32(&scraper.fetches))

	// With the first run complete the source is available again.
	run, err := scheduler.RunSource("h1")
	require.NoError(t, err)
	assert.True(t, run.Success)
}

func TestDifferentSourcesRunConcurrently(t *testing.T) {
	catalog := &stubCatalog{}
	scheduler := newTestScheduler(catalog, nil)
	first := newBlockingScraper("h1")
	scheduler.Register(first)
	scheduler.Register(&countingScraper{platform: "bc"})

	go scheduler.RunSource("h1")

	select {
	case <-first.started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking run never started")
	}

	// A different source is not blocked by h1's in-flight run.
	run, err := scheduler.RunSource("bc")
	require.NoError(t, err)
	assert.True(t, run.Success)

	close(first.release)
}

func TestSuccessfulRunForwardsSummary(t *testing.T) {
	catalog := &stubCatalog{listing: batchOf("h1", 2)}
	notifier := &recordingNotifier{}
	scheduler := newTestScheduler(catalog, notifier)
	scheduler.Register(&countingScraper{platform: "h1", batch: batchOf("h1", 2)})

	run, err := scheduler.RunSource("h1")
	require.NoError(t, err)
	require.True(t, run.Success)
	assert.Equal(t, 2, run.New)

	assert.Equal(t, []string{"h1"}, notifier.summaries)
	assert.Len(t, notifier.alerts, 2)
}

func TestQuietRunSendsNothing(t *testing.T) {
	// Upserts reporting neither new nor updated produce no events.
	catalog := &quietCatalog{}
	notifier := &recordingNotifier{}
	scheduler := newTestScheduler(catalog, notifier)
	scheduler.Register(&countingScraper{platform: "h1", batch: batchOf("h1", 3)})

	run, err := scheduler.RunSource("h1")
	require.NoError(t, err)
	require.True(t, run.Success)

	assert.Empty(t, notifier.summaries)
	assert.Empty(t, notifier.alerts)
}

func TestFailedRunIsNotForwarded(t *testing.T) {
	catalog := &stubCatalog{}
	notifier := &recordingNotifier{}
	scheduler := newTestScheduler(catalog, notifier)
	scheduler.Register(&failingScraper{platform: "h1"})

	run, err := scheduler.RunSource("h1")
	require.NoError(t, err)
	assert.False(t, run.Success)

	assert.Empty(t, notifier.summaries)
	assert.Empty(t, notifier.alerts)

	// The failure is still visible in the run log.
	require.Len(t, catalog.runs, 1)
	assert.False(t, catalog.runs[0].Success)
}

func TestLargeBatchSkipsPerProgramAlerts(t *testing.T) {
	catalog := &stubCatalog{listing: batchOf("h1", 8)}
	notifier := &recordingNotifier{}
	scheduler := newTestScheduler(catalog, notifier)
	scheduler.Register(&countingScraper{platform: "h1", batch: batchOf("h1", 8)})

	run, err := scheduler.RunSource("h1")
	require.NoError(t, err)
	assert.Equal(t, 8, run.New)

	// Above the alert limit only the summary goes out.
	assert.Equal(t, []string{"h1"}, notifier.summaries)
	assert.Empty(t, notifier.alerts)
}

func TestStartRunsImmediatePassAndStopWaits(t *testing.T) {
	catalog := &stubCatalog{}
	scheduler := newTestScheduler(catalog, nil)
	scraper := newBlockingScraper("h1")
	scheduler.Register(scraper)

	scheduler.Start()

	select {
	case <-scraper.started:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate pass never started")
	}

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()

	// Stop must wait for the in-flight run rather than cancel it.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(scraper.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the run completed")
	}

	assert.EqualValues(t, 1, atomic.LoadInt32(&scraper.fetches))
	require.Len(t, catalog.runs, 1)
}

// quietCatalog reports every upsert as unchanged.
type quietCatalog struct {
	stubCatalog
}

func (q *quietCatalog) UpsertProgram(context.Context, *models.Program) (bool, bool, error) {
	return false, false, nil
}
