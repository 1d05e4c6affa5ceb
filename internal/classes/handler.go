package classes

import (
	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ClassResponse struct {
	ID         uint    `json:"id"`
	Name       string  `json:"name"`
	DuesAmount float64 `json:"dues_amount"`
	DemoSeed   bool    `json:"demo_seed"`
}

type CreateClassRequest struct {
	Name       string  `json:"name" validate:"required,max=100"`
	DuesAmount float64 `json:"dues_amount" validate:"gte=0"`
}

type UpdateClassRequest struct {
	DuesAmount float64 `json:"dues_amount" validate:"gte=0"`
	Propagate  bool    `json:"propagate"`
}

func ToResponse(c *models.MembershipClass) ClassResponse {
	return ClassResponse{
		ID:         c.ID,
		Name:       c.Name,
		DuesAmount: models.Money(c.DuesAmount),
		DemoSeed:   c.DemoSeed,
	}
}

// GET /api/classes
func ListClassesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := svc.List(c.UserContext())
		if err != nil {
			return err
		}
		resp := make([]ClassResponse, 0, len(list))
		for i := range list {
			resp = append(resp, ToResponse(&list[i]))
		}
		return c.JSON(resp)
	}
}

// POST /api/classes
func CreateClassHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateClassRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		class, err := svc.Create(c.UserContext(), body.Name, models.DecimalFromFloat(body.DuesAmount), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(class))
	}
}

// PATCH /api/classes/:id
func UpdateClassHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid class id")
		}
		var body UpdateClassRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		res, err := svc.UpdateDues(c.UserContext(), uint(id), models.DecimalFromFloat(body.DuesAmount), body.Propagate, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"class":           ToResponse(res.Class),
			"members_updated": res.MembersUpdated,
		})
	}
}

// DELETE /api/classes/:id
func DeleteClassHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid class id")
		}
		if err := svc.Delete(c.UserContext(), uint(id), auth.ActorFrom(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
