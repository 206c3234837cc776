package main

import (
	"errors"
	"fmt"
	"sync/atomic"

	"dice-derby/games/dice_derby"
	"dice-derby/utils"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// botStatus is reported by the health endpoints
type botStatus struct {
	v atomic.Value
}

func (b *botStatus) Set(s string) { b.v.Store(s) }

func (b *botStatus) Get() string {
	if s, ok := b.v.Load().(string); ok {
		return s
	}
	return "starting"
}

// newHealthServer builds the HTTP app used for health checks and race audits.
// audit may be nil when no readable audit store is configured.
func newHealthServer(engine *dice_derby.Engine, audit utils.AuditReader, status *botStatus) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               utils.BotName,
		DisableStartupMessage: true,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(fmt.Sprintf("Discord Bot Status: %s", status.Get()))
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "healthy",
			"service":        "dice-derby",
			"bot_status":     status.Get(),
			"active_races":   engine.ActiveRaces(),
			"payouts_frozen": engine.Frozen(),
		})
	})

	app.Get("/audit/:raceID", func(c *fiber.Ctx) error {
		if audit == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "audit store not configured"})
		}
		raceID := c.Params("raceID")
		records, err := audit.Lookup(c.UserContext(), raceID)
		if errors.Is(err, utils.ErrAuditNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "race not found"})
		}
		if err != nil {
			log.WithField("race_id", raceID).WithError(err).Error("Audit lookup failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "audit lookup failed"})
		}

		resp := fiber.Map{"race_id": raceID, "records": records}
		verification, err := dice_derby.VerifyAudit(records)
		if err != nil {
			resp["verify_error"] = err.Error()
		} else {
			resp["verification"] = verification
		}
		return c.JSON(resp)
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		if limit < 1 || limit > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 100"})
		}
		top, err := engine.Leaderboard(c.UserContext(), limit)
		if err != nil {
			log.WithError(err).Error("Leaderboard lookup failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard unavailable"})
		}
		return c.JSON(fiber.Map{"players": top})
	})

	return app
}
