package demo

import (
	"dues-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// POST /api/sample/seed
func SeedHandler(s *Seeder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := s.Seed(c.UserContext(), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		status := fiber.StatusCreated
		if res.AlreadySeeded {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(res)
	}
}

// POST /api/sample/reset
func ResetHandler(s *Seeder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := s.Reset(c.UserContext(), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
