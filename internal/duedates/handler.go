package duedates

import (
	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type DueDateResponse struct {
	ID         uint     `json:"id"`
	DueDate    string   `json:"due_date"`
	ClassNames []string `json:"class_names"`
	DemoSeed   bool     `json:"demo_seed"`
	CreatedAt  string   `json:"created_at"`
}

type SetDueDateRequest struct {
	DueDate    string   `json:"due_date"`
	ClassNames []string `json:"class_names"`
}

func ToResponse(r *models.DueDateRecord) DueDateResponse {
	return DueDateResponse{
		ID:         r.ID,
		DueDate:    r.DueDate.UTC().Format("2006-01-02"),
		ClassNames: r.Classes(),
		DemoSeed:   r.DemoSeed,
		CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// GET /api/due-dates
func ListDueDatesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		recs, err := svc.List(c.UserContext())
		if err != nil {
			return err
		}
		resp := make([]DueDateResponse, 0, len(recs))
		for i := range recs {
			resp = append(resp, ToResponse(&recs[i]))
		}
		return c.JSON(resp)
	}
}

// POST /api/due-dates  {"due_date":"2025-09-01","class_names":["Tav","Shin"]}
func SetDueDateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SetDueDateRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.Validation("invalid request body")
		}
		if body.DueDate == "" {
			return apperr.Validation("due_date is required")
		}
		due, err := models.ParseDueDate(body.DueDate)
		if err != nil {
			return apperr.Validation("%v", err)
		}

		res, err := svc.Set(c.UserContext(), due, body.ClassNames, false, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"record":          ToResponse(res.Record),
			"members_updated": res.MembersUpdated,
		})
	}
}
