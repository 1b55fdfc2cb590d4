package services

import (
	"context"
	"fmt"

	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/scrapers"
	"github.com/sirupsen/logrus"
)

// IngestionService drives one source adapter to completion: fetch,
// upsert each record against the catalog, classify outcomes, and produce
// the run's audit record. Failures never escape Run; the caller inspects
// IngestionRun.Success.
type IngestionService struct {
	catalog CatalogStore
}

func NewIngestionService(catalog CatalogStore) *IngestionService {
	return &IngestionService{catalog: catalog}
}

// Run executes one ingestion for the given scraper and returns its audit
// record. The run record is appended to the catalog's run log on every
// path, success or failure.
//
// A whole-source fetch failure marks the run failed without touching the
// catalog. Individual upsert failures are skipped; the run is marked failed
// only when more than half of the fetched records fail to upsert, which
// points at a catalog problem rather than bad source entries.
func (s *IngestionService) Run(ctx context.Context, scraper scrapers.Scraper) *models.IngestionRun {
	run := models.NewIngestionRun(scraper.PlatformName())

	logrus.WithField("source", run.Source).Info("Starting ingestion run")

	programs, err := scraper.FetchPrograms(ctx)
	if err != nil {
		run.Complete(err.Error())
		logrus.WithFields(logrus.Fields{
			"source": run.Source,
			"error":  err,
		}).Error("Ingestion fetch failed")
		s.appendRunLog(ctx, run)
		return run
	}

	run.Found = len(programs)

	upsertFailures := 0
	for i := range programs {
		program := &programs[i]

		isNew, isUpdated, err := s.catalog.UpsertProgram(ctx, program)
		if err != nil {
			upsertFailures++
			logrus.WithFields(logrus.Fields{
				"source":   run.Source,
				"identity": program.Identity,
				"slug":     program.Slug,
				"error":    err,
			}).Warn("Skipping record after upsert failure")
			continue
		}

		switch {
		case isNew:
			run.New++
			logrus.WithFields(logrus.Fields{
				"source":  run.Source,
				"program": program.Name,
			}).Info("New program")
		case isUpdated:
			run.Updated++
			logrus.WithFields(logrus.Fields{
				"source":  run.Source,
				"program": program.Name,
			}).Info("Updated program")
		}
	}

	if run.Found > 0 && upsertFailures > run.Found/2 {
		run.Complete(fmt.Sprintf("%d of %d records failed to upsert", upsertFailures, run.Found))
		logrus.WithFields(logrus.Fields{
			"source":   run.Source,
			"failures": upsertFailures,
			"found":    run.Found,
		}).Error("Ingestion run failed: upsert failure rate exceeded threshold")
	} else {
		run.Complete("")
		logrus.WithFields(logrus.Fields{
			"source":  run.Source,
			"found":   run.Found,
			"new":     run.New,
			"updated": run.Updated,
		}).Info("Ingestion run complete")
	}

	s.appendRunLog(ctx, run)
	return run
}

func (s *IngestionService) appendRunLog(ctx context.Context, run *models.IngestionRun) {
	if err := s.catalog.AppendRunLog(ctx, run); err != nil {
		logrus.WithFields(logrus.Fields{
			"source": run.Source,
			"error":  err,
		}).Error("Failed to append ingestion run log")
	}
}
