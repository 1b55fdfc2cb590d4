package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jonnylitten/bountyping/jobs"
	"github.com/jonnylitten/bountyping/services"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	Catalog    services.CatalogStore
	Scheduler  *jobs.Scheduler
	AdminToken string
}

func NewAdminHandler(catalog services.CatalogStore, scheduler *jobs.Scheduler, adminToken string) *AdminHandler {
	return &AdminHandler{
		Catalog:    catalog,
		Scheduler:  scheduler,
		AdminToken: adminToken,
	}
}

// RequireToken guards admin routes with the X-Admin-Token header. An empty
// configured token disables the admin surface entirely.
func (h *AdminHandler) RequireToken(c *fiber.Ctx) error {
	if h.AdminToken == "" || c.Get("X-Admin-Token") != h.AdminToken {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}
	return c.Next()
}

// TriggerScrape runs one ingestion for the named platform and returns the
// run summary. Responds 409 when that source is already running.
func (h *AdminHandler) TriggerScrape(c *fiber.Ctx) error {
	platform := c.Params("platform")
	logrus.WithField("source", platform).Info("Manual ingestion triggered via admin endpoint")

	run, err := h.Scheduler.RunSource(platform)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnknownSource):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Unknown platform: " + platform,
			})
		case errors.Is(err, jobs.ErrSourceBusy):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "Ingestion for " + platform + " is already running",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    run,
	})
}

// GetRuns returns the recent ingestion run log, most recent first.
func (h *AdminHandler) GetRuns(c *fiber.Ctx) error {
	limit := 50
	if value, err := strconv.Atoi(c.Query("limit", "50")); err == nil && value > 0 {
		limit = value
	}

	runs, err := h.Catalog.RecentRuns(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    runs,
	})
}
