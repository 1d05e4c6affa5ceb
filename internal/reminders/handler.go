package reminders

import (
	"dues-backend/internal/apperr"
	"dues-backend/internal/auth"
	"dues-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type BulkReminderRequest struct {
	SendToAllUnpaid bool   `json:"send_to_all_unpaid"`
	MemberIDs       []uint `json:"member_ids" validate:"omitempty,dive,gt=0"`
}

// POST /api/reminders/individual/:memberId
func SendIndividualHandler(d *Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("memberId")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid member id")
		}
		res, err := d.SendIndividual(c.UserContext(), uint(id), auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// POST /api/reminders/bulk  {"send_to_all_unpaid": true}
func SendBulkHandler(d *Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkReminderRequest
		if err := apperr.ParseBody(c, &body); err != nil {
			return err
		}
		res, err := d.SendBulk(c.UserContext(), BulkRequest{
			SendToAllUnpaid: body.SendToAllUnpaid,
			MemberIDs:       body.MemberIDs,
		}, auth.ActorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// GET /api/reminders/logs?member_id=3&kind=bulk&limit=50
func ListLogsHandler(d *Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := d.Logs(c.UserContext(), LogFilter{
			MemberID: uint(c.QueryInt("member_id", 0)),
			Kind:     models.ReminderKind(c.Query("kind")),
			Limit:    c.QueryInt("limit", 100),
		})
		if err != nil {
			return err
		}
		return c.JSON(logs)
	}
}

// GET /api/reminders/schedule
func ListJobsHandler(s *Scheduler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s == nil {
			return c.JSON([]JobInfo{})
		}
		return c.JSON(s.Jobs())
	}
}
