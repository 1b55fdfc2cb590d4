// Package jobs drives periodic ingestion across all configured sources.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/notifiers"
	"github.com/jonnylitten/bountyping/scrapers"
	"github.com/jonnylitten/bountyping/services"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnknownSource is returned for a trigger naming an unregistered platform.
	ErrUnknownSource = errors.New("unknown source")
	// ErrSourceBusy is returned when a run for the source is already in flight.
	ErrSourceBusy = errors.New("source ingestion already in flight")
)

// newProgramAlertLimit caps per-record notifications for one run; above
// this only the batch summary is sent.
const newProgramAlertLimit = 5

// Scheduler owns one adapter per configured source and runs them on a
// fixed interval and on demand. At most one run per source is in flight at
// a time: a trigger for a busy source is skipped, not queued. Different
// sources run concurrently with each other.
type Scheduler struct {
	engine   *services.IngestionService
	catalog  services.CatalogStore
	notifier notifiers.Notifier
	scrapers map[string]scrapers.Scraper
	interval time.Duration

	mutex    sync.Mutex
	inFlight map[string]bool
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(engine *services.IngestionService, catalog services.CatalogStore, notifier notifiers.Notifier, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		catalog:  catalog,
		notifier: notifier,
		scrapers: make(map[string]scrapers.Scraper),
		interval: interval,
		inFlight: make(map[string]bool),
	}
}

// Register adds a source adapter. Not safe to call after Start.
func (s *Scheduler) Register(scraper scrapers.Scraper) {
	s.scrapers[scraper.PlatformName()] = scraper
	logrus.WithField("source", scraper.PlatformName()).Info("Registered source adapter")
}

// Sources returns the registered platform names.
func (s *Scheduler) Sources() []string {
	names := make([]string, 0, len(s.scrapers))
	for name := range s.scrapers {
		names = append(names, name)
	}
	return names
}

// Start launches the background loop: one immediate pass across all
// sources, then one pass per interval tick. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.mutex.Unlock()

	logrus.WithFields(logrus.Fields{
		"interval": s.interval,
		"sources":  len(s.scrapers),
	}).Info("Starting ingestion scheduler")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runAll()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runAll()
			}
		}
	}()
}

// Stop signals the loop to exit and waits for in-flight runs to complete.
// An in-progress fetch or upsert is never interrupted.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mutex.Unlock()

	logrus.Info("Stopping ingestion scheduler")
	s.wg.Wait()
	logrus.Info("Ingestion scheduler stopped")
}

// runAll dispatches one ingestion per source. Sources execute concurrently;
// a source still running from a previous pass is skipped.
func (s *Scheduler) runAll() {
	select {
	case <-s.stop:
		return
	default:
	}

	logrus.Info("Running all source adapters")

	var pass sync.WaitGroup
	for name := range s.scrapers {
		if !s.tryAcquire(name) {
			logrus.WithField("source", name).Warn("Skipping scheduled run: previous run still in flight")
			continue
		}

		pass.Add(1)
		s.wg.Add(1)
		go func(source string) {
			defer pass.Done()
			defer s.wg.Done()
			defer s.release(source)
			s.execute(source)
		}(name)
	}
	pass.Wait()
}

// RunSource triggers one ingestion for the named source on demand. Returns
// ErrSourceBusy when a run for that source is already in flight.
func (s *Scheduler) RunSource(source string) (*models.IngestionRun, error) {
	if _, ok := s.scrapers[source]; !ok {
		return nil, ErrUnknownSource
	}
	if !s.tryAcquire(source) {
		return nil, ErrSourceBusy
	}
	defer s.release(source)

	return s.execute(source), nil
}

func (s *Scheduler) tryAcquire(source string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.inFlight[source] {
		return false
	}
	s.inFlight[source] = true
	return true
}

func (s *Scheduler) release(source string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.inFlight[source] = false
}

// execute runs one ingestion and forwards the outcome to the notifier.
// Failed runs are recorded in the run log only; they are never forwarded.
func (s *Scheduler) execute(source string) *models.IngestionRun {
	run := s.engine.Run(context.Background(), s.scrapers[source])

	if !run.Success {
		logrus.WithFields(logrus.Fields{
			"source": source,
			"error":  run.ErrorMessage,
		}).Warn("Ingestion run failed")
		return run
	}

	if s.notifier == nil || (run.New == 0 && run.Updated == 0) {
		return run
	}

	s.notifier.SendBatchSummary(run.New, run.Updated, source)

	if run.New > 0 && run.New <= newProgramAlertLimit {
		s.alertNewPrograms(source, run.New)
	}

	return run
}

// alertNewPrograms sends individual alerts for a run's newly discovered
// programs. The catalog is the source of truth for what is new; a lookup
// failure only costs the alerts.
func (s *Scheduler) alertNewPrograms(source string, count int) {
	programs, err := s.catalog.ListPrograms(context.Background(), models.ProgramFilters{
		Platform: source,
		NewOnly:  true,
		SortBy:   "newest",
		Limit:    count,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"source": source,
			"error":  err,
		}).Warn("Could not load new programs for notification")
		return
	}

	for i := range programs {
		s.notifier.SendNewProgram(&programs[i])
	}
}
