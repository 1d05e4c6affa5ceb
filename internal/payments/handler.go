package payments

import (
	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/ledger"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateLinkRequest struct {
	MemberID uint `json:"member_id"`
}

type ProcessRequest struct {
	MemberID uint    `json:"member_id"`
	SourceID string  `json:"source_id" validate:"required,max=255"`
	Amount   float64 `json:"amount" validate:"gt=0"`
}

// selfOrManaged resolves the member a request is about. Members may only
// act for themselves; a missing id means the caller.
func selfOrManaged(c *fiber.Ctx, requested uint) (uint, error) {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return 0, err
	}
	if requested == 0 {
		requested = p.MemberID
	}
	if !auth.CanAccessMember(p, requested) {
		return 0, apperr.Forbidden("members can only pay their own dues")
	}
	return requested, nil
}

// POST /api/payments/create-link  {"member_id": 3}
func CreateLinkHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateLinkRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		memberID, err := selfOrManaged(c, body.MemberID)
		if err != nil {
			return err
		}
		res, err := svc.CreateLink(c.UserContext(), memberID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"payment_link_url": res.Link.URL,
			"order_id":         res.Link.OrderID,
			"token":            res.Link.Token,
			"amount":           models.Money(res.Amount),
		})
	}
}

// GET /api/payments/config
func ConfigHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.Gateway().PublicConfig())
	}
}

// POST /api/payments/process  {"member_id": 3, "source_id": "tok", "amount": 180}
func ProcessHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProcessRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		memberID, err := selfOrManaged(c, body.MemberID)
		if err != nil {
			return err
		}
		t, err := svc.Process(c.UserContext(), ProcessInput{
			MemberID: memberID,
			SourceID: body.SourceID,
			Amount:   models.DecimalFromFloat(body.Amount),
		}, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":     true,
			"transaction": ledger.ToResponse(t),
		})
	}
}

// POST /api/payments/notifications  (gateway callback, unauthenticated)
func NotificationHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var n Notification
		if err := c.BodyParser(&n); err != nil {
			return apperr.Validation("invalid notification payload")
		}
		res, err := svc.HandleNotification(c.UserContext(), n)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
