package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jonnylitten/bountyping/models"
	"github.com/jonnylitten/bountyping/services"
)

type ProgramHandler struct {
	Catalog services.CatalogStore
}

func NewProgramHandler(catalog services.CatalogStore) *ProgramHandler {
	return &ProgramHandler{Catalog: catalog}
}

// GetPrograms returns catalog programs with optional filters.
//
// Query params: platform, min_bounty, asset_type, search, sort_by
// (newest|bounty|name), new_only, bounties_only, limit.
func (h *ProgramHandler) GetPrograms(c *fiber.Ctx) error {
	filters := models.ProgramFilters{
		Platform:  c.Query("platform"),
		AssetType: c.Query("asset_type"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by", "newest"),
	}

	if minBounty := c.Query("min_bounty"); minBounty != "" {
		if value, err := strconv.Atoi(minBounty); err == nil {
			filters.MinBounty = value
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if value, err := strconv.Atoi(limit); err == nil {
			filters.Limit = value
		}
	}
	filters.NewOnly = c.Query("new_only") == "true"
	filters.BountiesOnly = c.Query("bounties_only") == "true"

	programs, err := h.Catalog.ListPrograms(c.Context(), filters)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(programs),
		"data":    programs,
	})
}

func (h *ProgramHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.Catalog.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// GetPlatforms returns every platform with its program count.
func (h *ProgramHandler) GetPlatforms(c *fiber.Ctx) error {
	stats, err := h.Catalog.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	platforms := make([]fiber.Map, 0, len(stats.ByPlatform))
	for platform, count := range stats.ByPlatform {
		platforms = append(platforms, fiber.Map{
			"name":  platform,
			"count": count,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    platforms,
	})
}
