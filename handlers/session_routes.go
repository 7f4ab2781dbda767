// handlers/session_routes.go
package handlers

import (
	"errors"

	"game-reward-system/middleware"
	"game-reward-system/services"
	"game-reward-system/storage"

	"github.com/gofiber/fiber/v2"
)

// SetupSessionRoutes wires the session lifecycle endpoints. The heavy lifting
// lives in the engine; these handlers only parse, delegate and map errors.
func SetupSessionRoutes(app *fiber.App, engine *services.Engine) {
	group := app.Group("/sessions", middleware.UserContextMiddleware())

	group.Post("/", func(c *fiber.Ctx) error {
		playerID := c.Locals("player_id").(string)

		var req struct {
			GameID string `json:"game_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		sess, err := engine.StartSession(c.Context(), playerID, req.GameID)
		if err != nil {
			return mapEngineError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	group.Get("/:id", func(c *fiber.Ctx) error {
		sess, err := engine.Session(c.Context(), c.Params("id"))
		if err != nil {
			return mapEngineError(c, err)
		}
		if sess.PlayerID != c.Locals("player_id").(string) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(sess)
	})

	group.Post("/:id/complete", func(c *fiber.Ctx) error {
		var in services.CompleteSessionInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		in.SessionID = c.Params("id")

		result, err := engine.CompleteSession(c.Context(), in)
		if err != nil {
			return mapEngineError(c, err)
		}
		return c.JSON(result)
	})
}

// mapEngineError translates the engine's error taxonomy onto HTTP statuses.
// AlreadyFinalized gets its own marker so a retrying caller can tell "already
// handled" apart from a real failure and fetch the session instead.
func mapEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrAlreadyFinalized):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":             "session already finalized",
			"already_completed": true,
		})
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrInsufficientFunds):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient balance"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"cause": err.Error(),
		})
	}
}
