// handlers/progression_routes.go
package handlers

import (
	"time"

	"game-reward-system/middleware"
	"game-reward-system/models"
	"game-reward-system/services"
	"game-reward-system/storage"

	"github.com/gofiber/fiber/v2"
)

// ProgressionDeps bundles what the read-side routes need.
type ProgressionDeps struct {
	Wallets      storage.WalletStore
	Progress     storage.ProgressionStore
	Games        storage.GameStore
	Achievements *services.AchievementService
	Leaderboards *services.LeaderboardService
	Challenges   *services.ChallengeService
}

func SetupProgressionRoutes(app *fiber.App, deps ProgressionDeps) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/user/progress", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)

		prog, err := deps.Progress.EnsureProgress(c.Context(), playerID)
		if err != nil {
			return mapEngineError(c, err)
		}
		wallet, err := deps.Wallets.EnsureWallet(c.Context(), playerID)
		if err != nil {
			return mapEngineError(c, err)
		}

		nextLevelXP := services.XPForLevel(prog.Level + 1)
		return c.JSON(fiber.Map{
			"player_id":       prog.PlayerID,
			"total_xp":        prog.TotalXP,
			"level":           prog.Level,
			"rank":            prog.Rank,
			"rank_name":       services.RankName(prog.Rank),
			"xp_to_next":      nextLevelXP - prog.TotalXP,
			"games_played":    prog.GamesPlayed,
			"wins":            prog.Wins,
			"losses":          prog.Losses,
			"draws":           prog.Draws,
			"perfect_scores":  prog.PerfectScores,
			"current_streak":  prog.CurrentStreak,
			"longest_streak":  prog.LongestStreak,
			"wallet_balance":  wallet.CurrentBalance,
			"lifetime_earned": wallet.LifetimeEarned,
			"features":        services.FeaturesFor(prog.GamesPlayed, prog.Level),
			"last_level_up":   prog.LastLevelUpAt,
		})
	})

	secured.Get("/user/achievements", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)
		gameID := c.Query("game_id")

		prog, err := deps.Progress.EnsureProgress(c.Context(), playerID)
		if err != nil {
			return mapEngineError(c, err)
		}
		preview, err := deps.Achievements.Preview(c.Context(), playerID, gameID, prog)
		if err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(preview)
	})

	secured.Get("/user/challenges", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)
		views, err := deps.Challenges.Today(c.Context(), playerID, time.Now().UTC())
		if err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(views)
	})

	secured.Post("/user/challenges/:id/claim", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)
		wallet, err := deps.Challenges.Claim(c.Context(), playerID, c.Params("id"), time.Now().UTC())
		if err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(fiber.Map{"message": "challenge rewards claimed", "wallet": wallet})
	})

	secured.Get("/leaderboard/:gameId", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)
		gameID := c.Params("gameId")
		period := models.LeaderboardPeriod(c.Query("period", string(models.PeriodDaily)))
		metric := models.LeaderboardMetric(c.Query("metric", string(models.MetricScore)))
		limit := c.QueryInt("limit", 20)
		now := time.Now().UTC()

		top, err := deps.Leaderboards.Top(c.Context(), gameID, period, metric, limit, now)
		if err != nil {
			return mapEngineError(c, err)
		}

		resp := fiber.Map{"entries": top}
		if c.QueryBool("around", false) {
			around, err := deps.Leaderboards.Around(c.Context(), gameID, period, metric, playerID, c.QueryInt("radius", 5), now)
			if err == nil {
				resp["around"] = around
			}
		}
		return c.JSON(resp)
	})

	// Admin endpoints: catalog and game config seeding.
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/games", func(c *fiber.Ctx) error {
		var game models.Game
		if err := c.BodyParser(&game); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if game.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
		}
		if err := deps.Games.UpsertGame(c.Context(), &game); err != nil {
			return mapEngineError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(game)
	})

	admin.Post("/achievements/seed", func(c *fiber.Ctx) error {
		if err := deps.Achievements.SeedCatalog(c.Context(), services.DefaultCatalog()); err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(fiber.Map{"message": "achievement catalog seeded"})
	})

	admin.Post("/challenges/seed", func(c *fiber.Ctx) error {
		day := c.Query("day", services.DayKey(time.Now().UTC()))
		if err := deps.Challenges.SeedDay(c.Context(), day); err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(fiber.Map{"message": "daily challenges seeded", "day": day})
	})
}
