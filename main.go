package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/jonnylitten/bountyping/config"
	"github.com/jonnylitten/bountyping/database"
	"github.com/jonnylitten/bountyping/handlers"
	"github.com/jonnylitten/bountyping/jobs"
	"github.com/jonnylitten/bountyping/notifiers"
	"github.com/jonnylitten/bountyping/scrapers"
	"github.com/jonnylitten/bountyping/services"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	// Initialize catalog and ingestion services
	catalogService := services.NewCatalogService(database.DB)
	ingestionService := services.NewIngestionService(catalogService)
	notifier := notifiers.NewDiscordNotifier(cfg.DiscordWebhookURL)

	// Build the source registry and scheduler
	scheduler := jobs.NewScheduler(ingestionService, catalogService, notifier, cfg.GetScrapeInterval())
	registerScrapers(scheduler, cfg)

	logrus.WithFields(logrus.Fields{
		"sources":  scheduler.Sources(),
		"interval": cfg.GetScrapeInterval(),
	}).Info("BountyPing services initialized")

	// Start background ingestion
	scheduler.Start()
	defer scheduler.Stop()

	// Setup Fiber
	app := fiber.New()

	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		if err := database.HealthCheck(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	programHandler := handlers.NewProgramHandler(catalogService)
	adminHandler := handlers.NewAdminHandler(catalogService, scheduler, cfg.AdminToken)

	api := app.Group("/api/v1")
	api.Get("/programs", programHandler.GetPrograms)
	api.Get("/stats", programHandler.GetStats)
	api.Get("/platforms", programHandler.GetPlatforms)

	admin := api.Group("/admin", adminHandler.RequireToken)
	admin.Get("/runs", adminHandler.GetRuns)
	admin.Post("/scrape/:platform", adminHandler.TriggerScrape)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// registerScrapers wires every enabled adapter from sources.yaml into the
// scheduler with the shared politeness and timeout settings.
func registerScrapers(scheduler *jobs.Scheduler, cfg *config.Config) {
	sources := config.LoadSources(cfg.SourcesFile)

	options := func(url string) scrapers.Options {
		return scrapers.Options{
			BaseURL:      url,
			RequestDelay: cfg.GetRequestDelay(),
			Timeout:      cfg.GetFetchTimeout(),
		}
	}

	if sources.HackerOne.Enabled {
		scheduler.Register(scrapers.NewHackerOneScraper(options(sources.HackerOne.URL)))
	}
	if sources.ProjectDiscovery.Enabled {
		scheduler.Register(scrapers.NewProjectDiscoveryScraper(options(sources.ProjectDiscovery.URL)))
	}
	if sources.Bugcrowd.Enabled {
		scheduler.Register(scrapers.NewBugcrowdScraper(options(sources.Bugcrowd.URL)))
	}
	if sources.YesWeHack.Enabled {
		scheduler.Register(scrapers.NewYesWeHackScraper(options(sources.YesWeHack.URL)))
	}
}
